package plan

import (
	"context"
	"fmt"
)

// Report bundles everything a consumer needs to judge a plan at a glance.
type Report struct {
	PlanID          string                   `json:"plan_id"`
	Title           string                   `json:"title"`
	Status          Status                   `json:"status"`
	Progress        Progress                 `json:"progress"`
	Diff            *Diff                    `json:"architecture_diff"`
	TasksByStatus   map[TaskStatus][]*Task   `json:"tasks_by_status"`
	RecentErrors    []*TaskError             `json:"recent_errors"`
	Recommendations []string                 `json:"recommendations"`
}

// GenerateReport builds a plan report: the architecture diff, tasks grouped by
// status, the ten most recent task errors (newest first), and
// threshold-derived recommendations.
func (s *Store) GenerateReport(ctx context.Context, planID string, prober Prober) (*Report, error) {
	diff, err := s.CompareArchitecture(ctx, planID, prober)
	if err != nil {
		return nil, err
	}
	p, err := s.Get(planID)
	if err != nil {
		return nil, err
	}

	// p is this caller's copy; grouping hands its tasks to the report
	// without touching stored state.
	p.RecomputeProgress()

	byStatus := make(map[TaskStatus][]*Task)
	for _, t := range p.Tasks {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}

	r := &Report{
		PlanID:        p.ID,
		Title:         p.Title,
		Status:        p.Status,
		Progress:      p.Progress,
		Diff:          diff,
		TasksByStatus: byStatus,
		RecentErrors:  p.RecentErrors(10),
	}

	missing := len(diff.MissingComponents) + len(diff.MissingAPIs) + len(diff.MissingFiles)
	if missing > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("%d planned items are not present; generate tasks from the architecture spec", missing))
	}
	if p.Progress.Failed > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("%d tasks have failed permanently; review their recorded errors", p.Progress.Failed))
	}
	if p.Progress.Blocked > 0 {
		r.Recommendations = append(r.Recommendations,
			fmt.Sprintf("%d tasks are blocked on incomplete dependencies", p.Progress.Blocked))
	}
	return r, nil
}
