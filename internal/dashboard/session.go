package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"prboard/internal/action"
	"prboard/internal/cache"
	"prboard/internal/forge"
	"prboard/internal/model"
	"prboard/internal/quota"
	"prboard/internal/triage"
)

const (
	OrganizationsKey = "organizations"
	OrganizationsTTL = 24 * time.Hour
)

var ErrNoOrganization = errors.New("no organization selected")

// Client is everything the dashboard asks of the GitHub API.
type Client interface {
	action.API
	SearchAssigned(ctx context.Context, org string) ([]*model.PullRequest, error)
	Organizations(ctx context.Context) ([]model.Organization, error)
	Viewer(ctx context.Context) (string, error)
}

// Session carries the dependencies of one signed-in dashboard. It is built
// once in main and handed to the UI.
type Session struct {
	Client    Client
	Quota     *quota.Tracker
	Cache     *cache.Cache
	Engine    *triage.Engine
	Executor  *action.Executor
	Workspace *Workspace
	Logger    *zap.Logger

	// OnRefresh, when set, is told the outcome of every refresh.
	OnRefresh func(error)
}

// Snapshot is the result set of one refresh. A newer snapshot replaces an
// older one wholesale.
type Snapshot struct {
	ID        uuid.UUID
	Org       string
	Items     []triage.Item
	FetchedAt time.Time
}

// Authenticate checks the credential and returns the viewer's login.
func (s *Session) Authenticate(ctx context.Context) (string, error) {
	login, err := s.Client.Viewer(ctx)
	if err != nil {
		return "", errors.Wrap(err, "authenticate")
	}
	s.Logger.Info("authenticated", zap.String("login", login))
	return login, nil
}

// Refresh runs the bulk query for org and returns the sorted, CI-unaware
// snapshot together with a channel of per-item CI enrichments. Any bulk
// query failure aborts the refresh; an empty result is not a failure.
func (s *Session) Refresh(ctx context.Context, org string) (*Snapshot, <-chan triage.Enrichment, error) {
	snap, ch, err := s.refresh(ctx, org)
	if s.OnRefresh != nil {
		s.OnRefresh(err)
	}
	return snap, ch, err
}

func (s *Session) refresh(ctx context.Context, org string) (*Snapshot, <-chan triage.Enrichment, error) {
	if org == "" {
		return nil, nil, ErrNoOrganization
	}
	snap := &Snapshot{ID: uuid.New(), Org: org, FetchedAt: time.Now()}
	log := s.Logger.With(zap.String("org", org), zap.Stringer("refresh", snap.ID))

	prs, err := s.Client.SearchAssigned(ctx, org)
	switch {
	case errors.Is(err, forge.ErrNoPullRequests):
		log.Info("no assigned pull requests")
		done := make(chan triage.Enrichment)
		close(done)
		return snap, done, nil
	case err != nil:
		log.Error("refresh failed", zap.Error(err))
		return nil, nil, errors.Wrapf(err, "load pull requests for %s", org)
	}

	snap.Items = s.Engine.Triage(prs)
	log.Info("refreshed", zap.Int("pull_requests", len(snap.Items)))
	return snap, s.Engine.Enrich(ctx, snap.Items), nil
}

// Organizations returns the viewer's organizations, served from the cache
// for up to a day. Cache trouble is logged and falls through to the API.
func (s *Session) Organizations(ctx context.Context) ([]model.Organization, error) {
	var orgs []model.Organization
	hit, err := s.Cache.Get(ctx, OrganizationsKey, &orgs)
	if err != nil {
		s.Logger.Warn("organization cache read failed", zap.Error(err))
	}
	if hit {
		return orgs, nil
	}

	orgs, err = s.Client.Organizations(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list organizations")
	}
	if err := s.Cache.Set(ctx, OrganizationsKey, orgs, OrganizationsTTL); err != nil {
		s.Logger.Warn("organization cache write failed", zap.Error(err))
	}
	return orgs, nil
}

// ForgetOrganizations drops the cached organization list.
func (s *Session) ForgetOrganizations(ctx context.Context) error {
	return s.Cache.Delete(ctx, OrganizationsKey)
}

// Run starts the command for a recommended action. It blocks until the
// command finishes.
func (s *Session) Run(ctx context.Context, a triage.Action) (action.Status, error) {
	cmd, err := action.For(s.Client, a)
	if err != nil {
		return action.Status{}, err
	}
	return s.Executor.Execute(ctx, cmd)
}
