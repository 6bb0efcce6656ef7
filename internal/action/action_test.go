package action

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prboard/internal/model"
	"prboard/internal/triage"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) MarkReady(ctx context.Context, nodeID string) error {
	return m.Called(ctx, nodeID).Error(0)
}

func (m *MockAPI) UpdateBranch(ctx context.Context, owner, repo string, number int) error {
	return m.Called(ctx, owner, repo, number).Error(0)
}

func (m *MockAPI) WorkflowRuns(ctx context.Context, owner, repo, sha string) ([]model.WorkflowRun, error) {
	args := m.Called(ctx, owner, repo, sha)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WorkflowRun), args.Error(1)
}

func (m *MockAPI) RerunFailedJobs(ctx context.Context, owner, repo string, runID int64) error {
	return m.Called(ctx, owner, repo, runID).Error(0)
}

type timers struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (t *timers) after(d time.Duration, f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.fns = append(t.fns, f)
}

func (t *timers) fire() {
	t.mu.Lock()
	fns := t.fns
	t.fns = nil
	t.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

type recorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *recorder) publish(s Status) {
	r.mu.Lock()
	r.phases = append(r.phases, s.Phase)
	r.mu.Unlock()
}

func newExecutor() (*Executor, *timers, *recorder) {
	tm := &timers{}
	rec := &recorder{}
	return New(zap.NewNop(), WithAfterFunc(tm.after), WithPublisher(rec.publish)), tm, rec
}

func TestExecutor_Execute(t *testing.T) {
	t.Run("success: runs once, then reverts to idle after the long delay", func(t *testing.T) {
		e, tm, rec := newExecutor()
		calls := 0
		var got Result
		cmd := Command{
			ID:        "mark-ready:acme/gateway#1",
			Kind:      "mark-ready",
			Loading:   "Marking ready…",
			Run:       func(context.Context) (Result, error) { calls++; return Result{Message: "done"}, nil },
			OnSuccess: func(r Result) { got = r },
		}

		st, err := e.Execute(context.Background(), cmd)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, PhaseSuccess, st.Phase)
		assert.Equal(t, "done", got.Message)
		assert.Equal(t, []time.Duration{SuccessDelay}, tm.delays)
		assert.True(t, e.Busy(cmd.ID))

		tm.fire()
		assert.False(t, e.Busy(cmd.ID))
		assert.Equal(t, []Phase{PhaseInFlight, PhaseSuccess, PhaseIdle}, rec.phases)
	})

	t.Run("failure: error shows briefly and calls the error handler", func(t *testing.T) {
		e, tm, rec := newExecutor()
		var handled error
		boom := errors.New("boom")
		st, err := e.Execute(context.Background(), Command{
			ID:      "x",
			Run:     func(context.Context) (Result, error) { return Result{}, boom },
			OnError: func(err error) { handled = err },
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, boom, handled)
		assert.Equal(t, PhaseError, st.Phase)
		assert.Equal(t, "boom", st.Message)
		assert.Equal(t, []time.Duration{ErrorDelay}, tm.delays)
		tm.fire()
		assert.Equal(t, []Phase{PhaseInFlight, PhaseError, PhaseIdle}, rec.phases)
	})

	t.Run("success: partial result is a warning", func(t *testing.T) {
		e, tm, _ := newExecutor()
		st, err := e.Execute(context.Background(), Command{
			ID:  "x",
			Run: func(context.Context) (Result, error) { return Result{Message: "1 of 2 succeeded", Partial: true}, nil },
		})
		require.NoError(t, err)
		assert.Equal(t, PhaseWarning, st.Phase)
		assert.Equal(t, []time.Duration{SuccessDelay}, tm.delays)
	})

	t.Run("failure: re-entry is rejected while in flight", func(t *testing.T) {
		e, _, _ := newExecutor()
		started := make(chan struct{})
		release := make(chan struct{})
		calls := 0
		cmd := Command{
			ID: "x",
			Run: func(context.Context) (Result, error) {
				calls++
				close(started)
				<-release
				return Result{}, nil
			},
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = e.Execute(context.Background(), cmd)
		}()
		<-started

		st, err := e.Execute(context.Background(), cmd)
		assert.ErrorIs(t, err, ErrInFlight)
		assert.Equal(t, PhaseInFlight, st.Phase)

		close(release)
		<-done
		assert.Equal(t, 1, calls)
	})

	t.Run("failure: re-entry is rejected until the outcome reverts", func(t *testing.T) {
		e, tm, _ := newExecutor()
		calls := 0
		cmd := Command{ID: "x", Run: func(context.Context) (Result, error) { calls++; return Result{}, nil }}

		_, err := e.Execute(context.Background(), cmd)
		require.NoError(t, err)
		_, err = e.Execute(context.Background(), cmd)
		assert.ErrorIs(t, err, ErrInFlight)

		tm.fire()
		_, err = e.Execute(context.Background(), cmd)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("success: different commands run independently", func(t *testing.T) {
		e, _, _ := newExecutor()
		ok := func(context.Context) (Result, error) { return Result{}, nil }
		_, err := e.Execute(context.Background(), Command{ID: "a", Run: ok})
		require.NoError(t, err)
		_, err = e.Execute(context.Background(), Command{ID: "b", Run: ok})
		require.NoError(t, err)
	})
}

func TestExecutor_Observer(t *testing.T) {
	var seen []string
	e := New(zap.NewNop(),
		WithAfterFunc(func(_ time.Duration, f func()) { f() }),
		WithObserver(func(kind string, phase Phase) { seen = append(seen, kind+"/"+string(phase)) }),
	)
	_, err := e.Execute(context.Background(), Command{
		ID: "x", Kind: "sync-branch",
		Run: func(context.Context) (Result, error) { return Result{}, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sync-branch/in-flight", "sync-branch/success", "sync-branch/idle"}, seen)
}

func TestRerun(t *testing.T) {
	ctx := context.Background()
	runs := []model.WorkflowRun{
		{ID: 1, Name: "ci", Conclusion: "failure"},
		{ID: 2, Name: "lint", Conclusion: "success"},
		{ID: 3, Name: "deploy", Conclusion: "cancelled"},
		{ID: 4, Name: "e2e", Conclusion: "failure"},
	}

	t.Run("success: partial failure is reported as K of N", func(t *testing.T) {
		api := new(MockAPI)
		api.On("WorkflowRuns", mock.Anything, "acme", "gateway", "abc").Return(runs, nil)
		api.On("RerunFailedJobs", mock.Anything, "acme", "gateway", int64(1)).Return(nil).Once()
		api.On("RerunFailedJobs", mock.Anything, "acme", "gateway", int64(3)).Return(errors.New("403")).Once()
		api.On("RerunFailedJobs", mock.Anything, "acme", "gateway", int64(4)).Return(nil).Once()

		report, err := Rerun(ctx, api, "acme", "gateway", "abc")
		require.NoError(t, err)
		assert.Equal(t, 2, report.Succeeded)
		assert.Equal(t, 3, report.Total)
		assert.Equal(t, "2 of 3 succeeded", report.String())
		assert.Len(t, report.Errors, 1)
		api.AssertExpectations(t)
		api.AssertNotCalled(t, "RerunFailedJobs", mock.Anything, "acme", "gateway", int64(2))
	})

	t.Run("failure: nothing to re-run", func(t *testing.T) {
		api := new(MockAPI)
		api.On("WorkflowRuns", mock.Anything, "acme", "gateway", "abc").
			Return([]model.WorkflowRun{{ID: 2, Conclusion: "success"}}, nil)

		_, err := Rerun(ctx, api, "acme", "gateway", "abc")
		assert.ErrorIs(t, err, ErrNoFailedRuns)
	})

	t.Run("failure: listing runs fails", func(t *testing.T) {
		api := new(MockAPI)
		lookup := errors.New("unavailable")
		api.On("WorkflowRuns", mock.Anything, "acme", "gateway", "abc").Return(nil, lookup)

		_, err := Rerun(ctx, api, "acme", "gateway", "abc")
		assert.ErrorIs(t, err, lookup)
		api.AssertNotCalled(t, "RerunFailedJobs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRerunFailedCommand(t *testing.T) {
	a := triage.Action{Kind: triage.ActionRerunFailed, Owner: "acme", Repo: "gateway", CommitID: "abc"}
	runs := []model.WorkflowRun{{ID: 1, Conclusion: "failure"}, {ID: 2, Conclusion: "failure"}}

	tests := []struct {
		name      string
		results   []error
		wantPhase Phase
		wantMsg   string
	}{
		{name: "success: all restarted", results: []error{nil, nil}, wantPhase: PhaseSuccess, wantMsg: "2 of 2 succeeded"},
		{name: "success: some restarted", results: []error{nil, errors.New("x")}, wantPhase: PhaseWarning, wantMsg: "1 of 2 succeeded"},
		{name: "failure: none restarted", results: []error{errors.New("x"), errors.New("y")}, wantPhase: PhaseError, wantMsg: "0 of 2 succeeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockAPI)
			api.On("WorkflowRuns", mock.Anything, "acme", "gateway", "abc").Return(runs, nil)
			api.On("RerunFailedJobs", mock.Anything, "acme", "gateway", int64(1)).Return(tt.results[0])
			api.On("RerunFailedJobs", mock.Anything, "acme", "gateway", int64(2)).Return(tt.results[1])

			e, _, _ := newExecutor()
			st, _ := e.Execute(context.Background(), RerunFailed(api, a))
			assert.Equal(t, tt.wantPhase, st.Phase)
			assert.Equal(t, tt.wantMsg, st.Message)
			assert.Equal(t, "rerun-failed:acme/gateway@abc", st.ID)
		})
	}
}

func TestFor(t *testing.T) {
	api := new(MockAPI)
	api.On("MarkReady", mock.Anything, "PR_1").Return(nil)
	api.On("UpdateBranch", mock.Anything, "acme", "gateway", 7).Return(errors.New("conflict"))

	e, _, _ := newExecutor()

	cmd, err := For(api, triage.Action{Kind: triage.ActionMarkReady, NodeID: "PR_1", Owner: "acme", Repo: "gateway", Number: 7})
	require.NoError(t, err)
	assert.Equal(t, "mark-ready:acme/gateway#7", cmd.ID)
	st, err := e.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, PhaseSuccess, st.Phase)

	cmd, err = For(api, triage.Action{Kind: triage.ActionSyncBranch, Owner: "acme", Repo: "gateway", BaseBranch: "main", Number: 7})
	require.NoError(t, err)
	assert.Equal(t, "Syncing with main…", cmd.Loading)
	st, err = e.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.Equal(t, PhaseError, st.Phase)
	assert.Contains(t, st.Message, "sync with main")

	_, err = For(api, triage.Action{Kind: "merge"})
	assert.Error(t, err)
	api.AssertExpectations(t)
}
