package triage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prboard/internal/model"
)

// DefaultCheckPrefix is stripped from failed check names for display.
const DefaultCheckPrefix = "rails-ci / "

// CheckRunLookup fetches the completed check runs of a commit.
type CheckRunLookup interface {
	CheckRuns(ctx context.Context, owner, repo, sha string) ([]model.CheckRun, error)
}

// Engine classifies, sorts and CI-enriches batches of pull requests.
type Engine struct {
	checks      CheckRunLookup
	prefix      string
	concurrency int
	now         func() time.Time
	observe     func(model.CIState)
	logger      *zap.Logger
}

type Option func(*Engine)

func WithCheckPrefix(p string) Option {
	return func(e *Engine) { e.prefix = p }
}

// WithConcurrency bounds the number of check-run lookups in flight.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEnrichObserver is called with the final CI state of every enrichment.
func WithEnrichObserver(fn func(model.CIState)) Option {
	return func(e *Engine) { e.observe = fn }
}

func New(checks CheckRunLookup, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		checks:      checks,
		prefix:      DefaultCheckPrefix,
		concurrency: 4,
		now:         time.Now,
		observe:     func(model.CIState) {},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Triage builds the initial, CI-unaware view: CI is seeded from the rollup
// state and every item is sorted and classified without any I/O.
func (e *Engine) Triage(prs []*model.PullRequest) []Item {
	now := e.now()
	items := make([]Item, 0, len(prs))
	for _, pr := range prs {
		if pr == nil {
			continue
		}
		ci := model.CIStatus{State: model.CINone}
		if pr.LatestCommitID() != "" {
			ci.State = model.RollupToCI(pr.CIRollupState())
		}
		items = append(items, Item{
			PR:        pr,
			CI:        ci,
			State:     Classify(pr, ci),
			Stale:     pr.IsStale(now),
			Actions:   Recommend(pr, ci),
			Enriching: true,
		})
	}
	Sort(items)
	return items
}

// Enrich computes the CI status of every item concurrently. Each result is
// sent as soon as it is ready; the channel is closed after the last one.
// Callers are not expected to wait for all results before showing items.
func (e *Engine) Enrich(ctx context.Context, items []Item) <-chan Enrichment {
	out := make(chan Enrichment, len(items))
	prs := make([]*model.PullRequest, len(items))
	for i := range items {
		prs[i] = items[i].PR
	}

	go func() {
		defer close(out)
		var g errgroup.Group
		g.SetLimit(e.concurrency)
		for i, pr := range prs {
			i, pr := i, pr
			g.Go(func() error {
				ci := e.safeCIStatus(ctx, pr)
				e.observe(ci.State)
				out <- Enrichment{
					Index:   i,
					URL:     pr.URL,
					CI:      ci,
					State:   Classify(pr, ci),
					Actions: Recommend(pr, ci),
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// safeCIStatus keeps a panic in one lookup from taking down the batch.
func (e *Engine) safeCIStatus(ctx context.Context, pr *model.PullRequest) (ci model.CIStatus) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("ci enrichment panicked",
				zap.String("pr", pr.URL),
				zap.Error(fmt.Errorf("%v", r)),
			)
			ci = model.CIStatus{State: model.CIError}
		}
	}()
	return e.CIStatus(ctx, pr)
}

// CIStatus resolves the CI status of one pull request. Only failing commits
// cost a check-run lookup; a failed lookup degrades to ERROR without checks.
func (e *Engine) CIStatus(ctx context.Context, pr *model.PullRequest) model.CIStatus {
	sha := pr.LatestCommitID()
	if sha == "" {
		return model.CIStatus{State: model.CINone}
	}
	state := model.RollupToCI(pr.CIRollupState())
	if !state.Failed() {
		return model.CIStatus{State: state}
	}

	runs, err := e.checks.CheckRuns(ctx, pr.Owner(), pr.RepoName(), sha)
	if err != nil {
		e.logger.Warn("check run lookup failed",
			zap.String("pr", pr.URL),
			zap.String("sha", sha),
			zap.Error(err),
		)
		return model.CIStatus{State: model.CIError}
	}

	var failed []model.FailedCheck
	for _, r := range runs {
		if r.Conclusion != "failure" {
			continue
		}
		failed = append(failed, model.FailedCheck{
			Name: strings.TrimPrefix(r.Name, e.prefix),
			Link: r.Link,
		})
	}
	return model.CIStatus{State: state, FailedChecks: failed}
}

// Apply patches an enrichment into items. It returns false when the
// enrichment does not belong to this slice.
func Apply(items []Item, en Enrichment) bool {
	if en.Index < 0 || en.Index >= len(items) || items[en.Index].PR.URL != en.URL {
		return false
	}
	it := &items[en.Index]
	it.CI = en.CI
	it.State = en.State
	it.Actions = en.Actions
	it.Enriching = false
	return true
}

// Sort orders items: ready to merge first, blocked by others last, and
// oldest update first within each bucket.
func Sort(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		return compare(a.PR, b.PR)
	})
}

func compare(a, b *model.PullRequest) int {
	if ar, br := a.IsReadyToBeMerged(), b.IsReadyToBeMerged(); ar != br {
		if ar {
			return -1
		}
		return 1
	}
	if ab, bb := a.IsBlockedByOther(), b.IsBlockedByOther(); ab != bb {
		if ab {
			return 1
		}
		return -1
	}
	return a.UpdatedAt.Compare(b.UpdatedAt)
}

// Classify picks the primary bucket of pr given its CI status.
func Classify(pr *model.PullRequest, ci model.CIStatus) State {
	switch {
	case pr.Draft:
		return StateDraft
	case pr.IsReadyToBeMerged():
		return StateReady
	case pr.IsBlockedByOther():
		return StateBlockedByOther
	case ci.State.Failed():
		return StateCIFailed
	default:
		return StateBlockedOnYou
	}
}

// Recommend lists every remediation that applies to pr. They are independent.
func Recommend(pr *model.PullRequest, ci model.CIStatus) []Action {
	var actions []Action
	if pr.Draft {
		actions = append(actions, Action{
			Kind:   ActionMarkReady,
			NodeID: pr.ID,
			Owner:  pr.Owner(),
			Repo:   pr.RepoName(),
			Number: pr.Number,
		})
	}
	if pr.IsBehind() {
		actions = append(actions, Action{
			Kind:       ActionSyncBranch,
			Owner:      pr.Owner(),
			Repo:       pr.RepoName(),
			BaseBranch: pr.BaseRef,
			Number:     pr.Number,
		})
	}
	if ci.State.Failed() && len(ci.FailedChecks) > 0 {
		actions = append(actions, Action{
			Kind:     ActionRerunFailed,
			Owner:    pr.Owner(),
			Repo:     pr.RepoName(),
			CommitID: pr.LatestCommitID(),
		})
	}
	return actions
}
