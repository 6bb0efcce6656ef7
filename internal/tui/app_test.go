package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prboard/internal/action"
	"prboard/internal/dashboard"
	"prboard/internal/forge"
	"prboard/internal/model"
	"prboard/internal/quota"
	"prboard/internal/triage"
)

func newModel(org string) Model {
	s := &dashboard.Session{
		Workspace: dashboard.NewWorkspace(org),
		Quota:     quota.New(zap.NewNop()),
		Executor:  action.New(zap.NewNop()),
		Logger:    zap.NewNop(),
	}
	return New(context.Background(), s)
}

func item(url string, enriching bool) triage.Item {
	return triage.Item{
		PR: &model.PullRequest{
			URL:        url,
			Number:     1,
			Title:      "[ABC-12] Fix login",
			Repository: model.Repository{Name: "api", NameWithOwner: "acme/api"},
		},
		CI:        model.CIStatus{State: model.CIFailure},
		State:     triage.StateCIFailed,
		Enriching: enriching,
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func TestUpdate_RefreshAndEnrichment(t *testing.T) {
	m := newModel("acme")
	ch := make(chan triage.Enrichment)
	first := &dashboard.Snapshot{ID: uuid.New(), Org: "acme", Items: []triage.Item{item("u1", true)}}

	m = update(t, m, refreshedMsg{snap: first, enrich: ch})
	assert.Equal(t, first.ID, m.refresh)
	require.Len(t, m.items, 1)
	assert.False(t, m.loading)

	stale := enrichedMsg{refresh: uuid.New(), en: triage.Enrichment{Index: 0, URL: "u1"}}
	m = update(t, m, stale)
	assert.True(t, m.items[0].Enriching, "enrichment from an older refresh is dropped")

	fresh := enrichedMsg{refresh: first.ID, en: triage.Enrichment{
		Index: 0, URL: "u1", State: triage.StateCIFailed,
		CI: model.CIStatus{State: model.CIFailure, FailedChecks: []model.FailedCheck{{Name: "lint"}}},
	}, next: ch}
	m = update(t, m, fresh)
	assert.False(t, m.items[0].Enriching)
	assert.Equal(t, "lint", m.items[0].CI.FailedChecks[0].Name)
}

func TestUpdate_SnapshotForAnotherOrgIsDropped(t *testing.T) {
	m := newModel("acme")
	m = update(t, m, refreshedMsg{snap: &dashboard.Snapshot{ID: uuid.New(), Org: "initech", Items: []triage.Item{item("u1", false)}}})
	assert.Empty(t, m.items)
}

func TestUpdate_RefreshErrors(t *testing.T) {
	t.Run("failure: rejected credential is terminal", func(t *testing.T) {
		m := newModel("acme")
		m = update(t, m, refreshedMsg{err: &forge.Error{Kind: forge.KindAuthInvalid, StatusCode: 401}})
		assert.Equal(t, stateAuthFailed, m.state)

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
		assert.Nil(t, cmd, "no retry after an auth failure")
	})

	t.Run("failure: transport error keeps the dashboard", func(t *testing.T) {
		m := newModel("acme")
		m = update(t, m, refreshedMsg{err: &forge.Error{Kind: forge.KindTransport}})
		assert.Equal(t, stateNormal, m.state)
		assert.Error(t, m.err)
	})
}

func TestUpdate_ActionStatus(t *testing.T) {
	m := newModel("acme")
	m = update(t, m, ActionStatus(action.Status{ID: "x", Phase: action.PhaseInFlight, Message: "Syncing…"}))
	assert.Equal(t, action.PhaseInFlight, m.statuses["x"].Phase)

	m = update(t, m, ActionStatus(action.Status{ID: "x", Phase: action.PhaseIdle}))
	assert.NotContains(t, m.statuses, "x")
}

func TestUpdate_UnavailableAction(t *testing.T) {
	m := newModel("acme")
	m = update(t, m, refreshedMsg{snap: &dashboard.Snapshot{ID: uuid.New(), Org: "acme", Items: []triage.Item{item("u1", false)}}, enrich: make(chan triage.Enrichment)})

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Nil(t, cmd)
	assert.Equal(t, "Sync with base is not available for #1", next.(Model).notice)
}

func TestUpdate_OrgPicker(t *testing.T) {
	m := newModel("")
	m = update(t, m, orgsLoadedMsg{orgs: []model.Organization{{Login: "acme"}, {Login: "initech"}}})
	assert.Equal(t, stateOrgPicker, m.state)

	m = update(t, m, orgsLoadedMsg{})
	assert.Equal(t, stateOrgInput, m.state, "no organizations falls back to typing one")
}

func TestPrItem(t *testing.T) {
	it := item("u1", false)
	it.Stale = true
	p := prItem{it: it, spinnerChar: "|"}
	assert.Contains(t, p.Title(), "ABC-12 Fix login")
	assert.Equal(t, "acme/api#1 · CI failed · stale", p.Description())

	p.it.Enriching = true
	assert.Equal(t, "| ABC-12 Fix login", p.Title())
}

func TestQuotaBanner(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tr := quota.New(zap.NewNop())
	assert.Empty(t, quotaBanner(tr, now))
	assert.Empty(t, quotaBanner(nil, now))

	tr.Record(model.RateLimit{Resource: "graphql", Remaining: 500, Limit: 5000})
	assert.Empty(t, quotaBanner(tr, now))

	tr.Record(model.RateLimit{Resource: "graphql", Remaining: 42, Limit: 5000, Reset: now.Add(17 * time.Minute)})
	assert.Equal(t, "API quota low: 42 of 5000 left, resets in 17m0s", quotaBanner(tr, now))
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", formatAge(now, now.Add(-10*time.Second)))
	assert.Equal(t, "5m ago", formatAge(now, now.Add(-5*time.Minute)))
	assert.Equal(t, "3h ago", formatAge(now, now.Add(-3*time.Hour)))
	assert.Equal(t, "2d ago", formatAge(now, now.Add(-50*time.Hour)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "abc", truncate("abc", 0))
}

func TestActionLine(t *testing.T) {
	assert.Contains(t, actionLine("f", "Re-run failed jobs", action.Status{}), "[f] Re-run failed jobs")
	assert.Contains(t, actionLine("f", "Re-run failed jobs", action.Status{Phase: action.PhaseWarning, Message: "2 of 3 succeeded"}), "2 of 3 succeeded")
}

func TestDescribeError(t *testing.T) {
	assert.Contains(t, describeError(&forge.Error{Kind: forge.KindRateLimited}), "rate limit")
	assert.Equal(t, "boom", describeError(errors.New("boom")))
}
