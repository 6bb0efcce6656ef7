package action

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"prboard/internal/model"
	"prboard/internal/triage"
)

var ErrNoFailedRuns = errors.New("no failed workflow runs for commit")

// API is the slice of the forge client the commands need.
type API interface {
	MarkReady(ctx context.Context, nodeID string) error
	UpdateBranch(ctx context.Context, owner, repo string, number int) error
	WorkflowRuns(ctx context.Context, owner, repo, sha string) ([]model.WorkflowRun, error)
	RerunFailedJobs(ctx context.Context, owner, repo string, runID int64) error
}

// ID identifies the button for a recommended action.
func ID(a triage.Action) string {
	switch a.Kind {
	case triage.ActionRerunFailed:
		return fmt.Sprintf("%s:%s/%s@%s", a.Kind, a.Owner, a.Repo, a.CommitID)
	default:
		return fmt.Sprintf("%s:%s/%s#%d", a.Kind, a.Owner, a.Repo, a.Number)
	}
}

// For builds the command that carries out a recommended action.
func For(api API, a triage.Action) (Command, error) {
	switch a.Kind {
	case triage.ActionMarkReady:
		return MarkReady(api, a), nil
	case triage.ActionSyncBranch:
		return SyncBranch(api, a), nil
	case triage.ActionRerunFailed:
		return RerunFailed(api, a), nil
	default:
		return Command{}, errors.Errorf("unknown action %q", a.Kind)
	}
}

func MarkReady(api API, a triage.Action) Command {
	return Command{
		ID:      ID(a),
		Kind:    string(a.Kind),
		Loading: "Marking ready…",
		Run: func(ctx context.Context) (Result, error) {
			if err := api.MarkReady(ctx, a.NodeID); err != nil {
				return Result{}, errors.Wrap(err, "mark ready")
			}
			return Result{Message: "Marked ready for review"}, nil
		},
	}
}

func SyncBranch(api API, a triage.Action) Command {
	return Command{
		ID:      ID(a),
		Kind:    string(a.Kind),
		Loading: "Syncing with " + a.BaseBranch + "…",
		Run: func(ctx context.Context) (Result, error) {
			if err := api.UpdateBranch(ctx, a.Owner, a.Repo, a.Number); err != nil {
				return Result{}, errors.Wrapf(err, "sync with %s", a.BaseBranch)
			}
			return Result{Message: "Synced with " + a.BaseBranch}, nil
		},
	}
}

func RerunFailed(api API, a triage.Action) Command {
	return Command{
		ID:      ID(a),
		Kind:    string(a.Kind),
		Loading: "Re-running failed jobs…",
		Run: func(ctx context.Context) (Result, error) {
			report, err := Rerun(ctx, api, a.Owner, a.Repo, a.CommitID)
			if err != nil {
				return Result{}, err
			}
			if report.Succeeded == 0 {
				return Result{}, report
			}
			return Result{Message: report.String(), Partial: report.Succeeded < report.Total}, nil
		},
	}
}

// RerunReport is the outcome of re-running every failed run of a commit.
// It doubles as the error when none of them could be restarted.
type RerunReport struct {
	Succeeded int
	Total     int
	Errors    []error
}

func (r RerunReport) String() string {
	return fmt.Sprintf("%d of %d succeeded", r.Succeeded, r.Total)
}

func (r RerunReport) Error() string {
	return r.String()
}

// Rerun lists the workflow runs of a commit and re-runs, one after another,
// the ones that failed or were cancelled. A failing re-run does not stop the
// remaining ones.
func Rerun(ctx context.Context, api API, owner, repo, sha string) (RerunReport, error) {
	runs, err := api.WorkflowRuns(ctx, owner, repo, sha)
	if err != nil {
		return RerunReport{}, errors.Wrap(err, "list workflow runs")
	}

	var report RerunReport
	for _, run := range runs {
		if run.Conclusion != "failure" && run.Conclusion != "cancelled" {
			continue
		}
		report.Total++
		if err := api.RerunFailedJobs(ctx, owner, repo, run.ID); err != nil {
			report.Errors = append(report.Errors, errors.Wrapf(err, "rerun %s (%d)", run.Name, run.ID))
			continue
		}
		report.Succeeded++
	}
	if report.Total == 0 {
		return report, ErrNoFailedRuns
	}
	return report, nil
}
