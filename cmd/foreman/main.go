// Command foreman is the Foreman CLI client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/foreman/internal/version"
)

const defaultServer = "http://localhost:9191"

func main() {
	var (
		serverURL = flag.String("server", defaultServer, "foreman server URL")
		token     = flag.String("token", os.Getenv("FOREMAN_TOKEN"), "JWT auth token")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &Client{
		BaseURL:    strings.TrimRight(*serverURL, "/"),
		Token:      *token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "status":
		err = cli.cmdStatus(rest)
	case "plans":
		err = cli.cmdPlans(rest)
	case "plan":
		err = cli.cmdPlan(rest)
	case "agent":
		err = cli.cmdAgent(rest)
	case "health":
		err = cli.cmdHealth(rest)
	case "triggers":
		err = cli.cmdTriggers(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `foreman — Foreman CLI

Usage:
  foreman [flags] <command> [args]

Flags:
  --server  <url>    server URL (default: http://localhost:9191)
  --token   <token>  JWT auth token (or $FOREMAN_TOKEN)

Commands:
  version                  print version
  status                   show server status
  plans                    list plans
  plan show <id>           show one plan
  plan report <id>         show a progress report
  plan diff <id>           compare architecture against the workspace
  plan tasks <id>          generate tasks from the plan's architecture
  agent                    show executor state
  agent start <plan-id>    start executing a plan
  agent pause              pause the executor
  agent resume             resume the executor
  agent stop               stop the executor
  agent recover [reason]   trigger manual recovery
  health                   show health status
  triggers                 list health triggers
`)
}

// --- version ---

func cmdVersion(_ []string) error {
	fmt.Printf("foreman %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.BuildDate)
	return nil
}

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// get performs a GET and decodes JSON into v.
func (c *Client) get(path string, v any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// post performs a POST and decodes JSON response into v (may be nil).
func (c *Client) post(path string, body io.Reader, v any) error {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if v != nil && resp.ContentLength != 0 {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

// --- status ---

func (c *Client) cmdStatus(_ []string) error {
	var result map[string]string
	if err := c.get("/api/status", &result); err != nil {
		return err
	}
	fmt.Printf("status:  %s\n", result["status"])
	fmt.Printf("version: %s\n", result["version"])
	return nil
}

// --- plans ---

func (c *Client) cmdPlans(_ []string) error {
	var plans []map[string]any
	if err := c.get("/api/plans", &plans); err != nil {
		return err
	}
	if len(plans) == 0 {
		fmt.Println("no plans")
		return nil
	}
	fmt.Printf("%-36s %-30s %-12s %-10s\n", "ID", "TITLE", "STATUS", "PROGRESS")
	fmt.Println(strings.Repeat("-", 92))
	for _, p := range plans {
		progress := ""
		if pr, ok := p["progress"].(map[string]any); ok {
			progress = fmt.Sprintf("%v/%v", pr["completed"], pr["total"])
		}
		fmt.Printf("%-36s %-30s %-12s %-10s\n",
			strVal(p["id"]),
			truncate(strVal(p["title"]), 29),
			strVal(p["status"]),
			progress,
		)
	}
	return nil
}

// --- plan subcommands ---

func (c *Client) cmdPlan(args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: foreman plan <show|report|diff|tasks> <id>")
		os.Exit(1)
	}
	sub, id := args[0], args[1]
	switch sub {
	case "show":
		var p json.RawMessage
		if err := c.get("/api/plans/"+id, &p); err != nil {
			return err
		}
		return printJSON(p)
	case "report":
		var rep json.RawMessage
		if err := c.get("/api/plans/"+id+"/report", &rep); err != nil {
			return err
		}
		return printJSON(rep)
	case "diff":
		var diff map[string]any
		if err := c.get("/api/plans/"+id+"/diff", &diff); err != nil {
			return err
		}
		fmt.Printf("completion: %v%%\n", diff["completion_percentage"])
		fmt.Printf("summary:    %s\n", strVal(diff["summary"]))
		return nil
	case "tasks":
		var tasks []map[string]any
		if err := c.post("/api/plans/"+id+"/tasks", nil, &tasks); err != nil {
			return err
		}
		fmt.Printf("generated %d tasks\n", len(tasks))
		return nil
	default:
		return fmt.Errorf("unknown plan subcommand: %s", sub)
	}
}

// --- agent subcommands ---

func (c *Client) cmdAgent(args []string) error {
	if len(args) == 0 {
		var st map[string]any
		if err := c.get("/api/agent", &st); err != nil {
			return err
		}
		fmt.Printf("status:               %s\n", strVal(st["status"]))
		fmt.Printf("plan:                 %s\n", strVal(st["plan_id"]))
		fmt.Printf("task:                 %s\n", strVal(st["task_id"]))
		fmt.Printf("healthy:              %v\n", st["is_healthy"])
		fmt.Printf("consecutive failures: %v\n", st["consecutive_failures"])
		return nil
	}
	sub := args[0]
	switch sub {
	case "start":
		if len(args) < 2 {
			return fmt.Errorf("usage: foreman agent start <plan-id>")
		}
		body := fmt.Sprintf(`{"plan_id":%q}`, args[1])
		if err := c.post("/api/agent/start", strings.NewReader(body), nil); err != nil {
			return err
		}
		fmt.Printf("plan %s started\n", args[1])
	case "pause":
		if err := c.post("/api/agent/pause", nil, nil); err != nil {
			return err
		}
		fmt.Println("executor paused")
	case "resume":
		if err := c.post("/api/agent/resume", nil, nil); err != nil {
			return err
		}
		fmt.Println("executor resumed")
	case "stop":
		if err := c.post("/api/agent/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("executor stopped")
	case "recover":
		reason := "manual recovery request"
		if len(args) > 1 {
			reason = strings.Join(args[1:], " ")
		}
		body := fmt.Sprintf(`{"reason":%q}`, reason)
		if err := c.post("/api/agent/recover", strings.NewReader(body), nil); err != nil {
			return err
		}
		fmt.Println("recovery triggered")
	default:
		return fmt.Errorf("unknown agent subcommand: %s", sub)
	}
	return nil
}

// --- health ---

func (c *Client) cmdHealth(_ []string) error {
	var st map[string]any
	if err := c.get("/api/health", &st); err != nil {
		return err
	}
	fmt.Printf("overall: %s\n", strVal(st["overall"]))
	checks, ok := st["checks"].(map[string]any)
	if !ok {
		return nil
	}
	for name, v := range checks {
		check, ok := v.(map[string]any)
		if !ok {
			continue
		}
		fmt.Printf("  %-14s %-5s %s\n", name, strVal(check["result"]), strVal(check["detail"]))
	}
	return nil
}

// --- triggers ---

func (c *Client) cmdTriggers(_ []string) error {
	var triggers []map[string]any
	if err := c.get("/api/health/triggers", &triggers); err != nil {
		return err
	}
	if len(triggers) == 0 {
		fmt.Println("no triggers")
		return nil
	}
	fmt.Printf("%-36s %-28s %-10s %-8s %-6s\n", "ID", "NAME", "ACTION", "ENABLED", "FIRED")
	fmt.Println(strings.Repeat("-", 92))
	for _, t := range triggers {
		fmt.Printf("%-36s %-28s %-10s %-8v %-6v\n",
			strVal(t["id"]),
			truncate(strVal(t["name"]), 27),
			strVal(t["action"]),
			t["enabled"],
			t["trigger_count"],
		)
	}
	return nil
}

// --- helpers ---

func printJSON(raw json.RawMessage) error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return err
	}
	fmt.Print(buf.String())
	return nil
}

func strVal(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
