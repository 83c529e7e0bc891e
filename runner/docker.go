package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerSpec describes the container a Docker runner executes inside.
type DockerSpec struct {
	Image        string            `json:"image"`
	BuildCommand string            `json:"build_command"`
	TestCommand  string            `json:"test_command"`
	Env          map[string]string `json:"env,omitempty"`
	MemoryLimit  int64             `json:"memory_limit,omitempty"`
	CPULimit     float64           `json:"cpu_limit,omitempty"`
	NetworkMode  string            `json:"network_mode,omitempty"`
}

// Docker runs builds and tests inside a long-lived workspace container with
// the project bind-mounted at /workspace. One container per runner; it is
// created lazily on first use and removed by Close.
type Docker struct {
	mu        sync.Mutex
	client    client.APIClient
	spec      DockerSpec
	workspace string
	container string
	available bool
}

// NewDocker creates a Docker runner for the given workspace path. If the
// Docker daemon is unreachable the runner reports itself unavailable and
// every run fails fast.
func NewDocker(workspace string, spec DockerSpec) *Docker {
	d := &Docker{spec: spec, workspace: workspace}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return d
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return d
	}
	d.client = cli
	d.available = true
	return d
}

// IsAvailable returns true if the Docker daemon is reachable.
func (d *Docker) IsAvailable() bool { return d.available }

// RunBuild executes the configured build command inside the workspace container.
func (d *Docker) RunBuild(ctx context.Context, dir string) (*BuildResult, error) {
	start := time.Now()
	stdout, stderr, code, err := d.exec(ctx, d.spec.BuildCommand, dir)
	if err != nil {
		return nil, err
	}
	res := &BuildResult{
		Success:  code == 0,
		Duration: time.Since(start),
	}
	if code != 0 {
		res.Errors = splitOutputLines(stdout + "\n" + stderr)
	} else {
		res.Warnings = grepLines(stdout+"\n"+stderr, "warning")
	}
	return res, nil
}

// RunTests executes the configured test command inside the workspace container.
func (d *Docker) RunTests(ctx context.Context, dir string) (*TestResult, error) {
	start := time.Now()
	stdout, stderr, code, err := d.exec(ctx, d.spec.TestCommand, dir)
	if err != nil {
		return nil, err
	}
	res := &TestResult{
		Success:  code == 0,
		Duration: time.Since(start),
	}
	res.Passed, res.Failed, res.Skipped = countTestResults(stdout)
	if code != 0 {
		if res.Failed == 0 {
			res.Failed = 1
		}
		res.Errors = grepLines(stdout+"\n"+stderr, "fail")
	}
	return res, nil
}

// Exists probes a path inside the workspace container.
func (d *Docker) Exists(ctx context.Context, path string) (bool, error) {
	_, _, code, err := d.exec(ctx, fmt.Sprintf("test -e %q", path), "/workspace")
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// Close stops and removes the workspace container, if one was created.
func (d *Docker) Close(ctx context.Context) error {
	d.mu.Lock()
	cid := d.container
	d.container = ""
	d.mu.Unlock()

	if cid == "" || !d.available {
		return nil
	}
	if err := d.client.ContainerRemove(ctx, cid, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("docker runner: remove container: %w", err)
	}
	return d.client.Close()
}

// ensureContainer creates or reuses the workspace container.
func (d *Docker) ensureContainer(ctx context.Context) (string, error) {
	if !d.available {
		return "", fmt.Errorf("docker runner: daemon not available")
	}
	if d.spec.Image == "" {
		return "", fmt.Errorf("docker runner: image is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.container != "" {
		info, err := d.client.ContainerInspect(ctx, d.container)
		if err == nil && info.State.Running {
			return d.container, nil
		}
		d.container = ""
	}

	if err := d.ensureImage(ctx, d.spec.Image); err != nil {
		return "", fmt.Errorf("docker runner: pull image: %w", err)
	}

	var env []string
	for k, v := range d.spec.Env {
		env = append(env, k+"="+v)
	}
	containerCfg := &container.Config{
		Image:      d.spec.Image,
		Cmd:        []string{"sleep", "infinity"},
		Env:        env,
		WorkingDir: "/workspace",
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: d.workspace,
				Target: "/workspace",
			},
		},
	}
	if d.spec.MemoryLimit > 0 {
		hostCfg.Memory = d.spec.MemoryLimit
	}
	if d.spec.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(d.spec.CPULimit * 1e9)
	}
	if d.spec.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(d.spec.NetworkMode)
	}

	resp, err := d.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("docker runner: create container: %w", err)
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer rmCancel()
		_ = d.client.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("docker runner: start container: %w", err)
	}
	d.container = resp.ID
	return resp.ID, nil
}

// ensureImage pulls the image if it is not present locally.
func (d *Docker) ensureImage(ctx context.Context, ref string) error {
	if _, err := d.client.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	rc, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// exec runs a shell command inside the workspace container.
func (d *Docker) exec(ctx context.Context, command, workDir string) (stdout, stderr string, exitCode int, err error) {
	cid, err := d.ensureContainer(ctx)
	if err != nil {
		return "", "", -1, err
	}
	if workDir == "" {
		workDir = "/workspace"
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	}
	execResp, err := d.client.ContainerExecCreate(ctx, cid, execCfg)
	if err != nil {
		return "", "", -1, fmt.Errorf("docker runner: exec create: %w", err)
	}
	attachResp, err := d.client.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", -1, fmt.Errorf("docker runner: exec attach: %w", err)
	}
	defer attachResp.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attachResp.Reader); err != nil {
		return "", "", -1, fmt.Errorf("docker runner: exec read: %w", err)
	}
	inspectResp, err := d.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("docker runner: exec inspect: %w", err)
	}
	return stdoutBuf.String(), stderrBuf.String(), inspectResp.ExitCode, nil
}
