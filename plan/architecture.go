package plan

import (
	"context"
	"fmt"
	"time"
)

// Prober checks whether a planned artifact exists in the target environment.
// Implementations live with the other external collaborators in package runner.
type Prober interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Diff is the result of comparing planned architecture against reality.
type Diff struct {
	CompletionPercentage int      `json:"completion_percentage"`
	MissingComponents    []string `json:"missing_components"`
	MissingAPIs          []string `json:"missing_apis"`
	MissingFiles         []string `json:"missing_files"`
	Unverified           []string `json:"unverified"`
	Summary              string   `json:"summary"`
}

// AddTasksFromArchitecture synthesizes one task per unimplemented architecture
// item. The task graph is always derivable from, and traceable to, the architecture spec:
// each task targets exactly the item's planned path.
func (s *Store) AddTasksFromArchitecture(planID string) ([]*Task, error) {
	p, err := s.Get(planID)
	if err != nil {
		return nil, err
	}

	var created []*Task
	add := func(item ArchItem, category string) error {
		if item.Implemented {
			return nil
		}
		typ := item.Type
		if typ == "" {
			typ = category
		}
		t := &Task{
			Title:        fmt.Sprintf("Implement %s %s", typ, item.Name),
			Description:  fmt.Sprintf("Create %s at %s", item.Name, item.Path),
			Type:         typ,
			Priority:     priorityFor(typ),
			Complexity:   complexityFor(typ),
			PlannedFiles: []string{item.Path},
		}
		if _, err := s.AddTask(planID, t); err != nil {
			return err
		}
		created = append(created, t)
		return nil
	}

	for _, item := range p.Architecture.Components {
		if err := add(item, "component"); err != nil {
			return created, err
		}
	}
	for _, item := range p.Architecture.APIs {
		if err := add(item, "api"); err != nil {
			return created, err
		}
	}
	for _, item := range p.Architecture.Files {
		if err := add(item, "file"); err != nil {
			return created, err
		}
	}
	return created, nil
}

// priorityFor maps a structural type to a default priority. APIs and pages
// sit on the critical path; hooks and utilities can trail.
func priorityFor(typ string) Priority {
	switch typ {
	case "api", "page", "service":
		return PriorityHigh
	case "hook", "utility", "model":
		return PriorityMedium
	default:
		return PriorityMedium
	}
}

// complexityFor estimates implementation complexity (1..5) by structural type.
func complexityFor(typ string) int {
	switch typ {
	case "api", "service":
		return 4
	case "component", "page":
		return 3
	case "hook", "model":
		return 2
	default:
		return 1
	}
}

// CompareArchitecture probes the target environment for every planned item,
// updates implemented/verified/tested flags, accumulates newly confirmed items
// into the plan's implemented architecture, and reports the diff.
//
// Re-running with no environment change yields an identical result.
func (s *Store) CompareArchitecture(ctx context.Context, planID string, prober Prober) (*Diff, error) {
	// Flags are updated on the stored plan, so the whole probe-and-update
	// runs under the write lock rather than on a Get copy.
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("plan %s not found", planID)
	}

	diff := &Diff{
		MissingComponents: []string{},
		MissingAPIs:       []string{},
		MissingFiles:      []string{},
		Unverified:        []string{},
	}
	total := p.Architecture.Total()
	implemented := 0

	check := func(items []ArchItem, missing *[]string, confirmed *[]ArchItem) error {
		for i := range items {
			item := &items[i]
			exists, err := prober.Exists(ctx, item.Path)
			if err != nil {
				return fmt.Errorf("probe %s: %w", item.Path, err)
			}
			item.Implemented = exists
			if !exists {
				item.Verified = false
				item.Tested = false
				*missing = append(*missing, item.Name)
				continue
			}
			implemented++
			if !item.Verified || !item.Tested {
				diff.Unverified = append(diff.Unverified, item.Name)
			}
			if !containsItem(*confirmed, item.Path) {
				*confirmed = append(*confirmed, *item)
			}
		}
		return nil
	}

	if err := check(p.Architecture.Components, &diff.MissingComponents, &p.ImplementedArchitecture.Components); err != nil {
		return nil, err
	}
	if err := check(p.Architecture.APIs, &diff.MissingAPIs, &p.ImplementedArchitecture.APIs); err != nil {
		return nil, err
	}
	if err := check(p.Architecture.Files, &diff.MissingFiles, &p.ImplementedArchitecture.Files); err != nil {
		return nil, err
	}

	if total > 0 {
		diff.CompletionPercentage = implemented * 100 / total
	} else {
		diff.CompletionPercentage = 100
	}
	missing := len(diff.MissingComponents) + len(diff.MissingAPIs) + len(diff.MissingFiles)
	diff.Summary = fmt.Sprintf("%d of %d planned items implemented (%d%%): %d missing, %d awaiting verification",
		implemented, total, diff.CompletionPercentage, missing, len(diff.Unverified))
	p.UpdatedAt = time.Now().UTC()
	return diff, nil
}

func containsItem(items []ArchItem, path string) bool {
	for _, it := range items {
		if it.Path == path {
			return true
		}
	}
	return false
}
