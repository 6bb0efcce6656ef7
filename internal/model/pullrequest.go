package model

import (
	"regexp"
	"strings"
	"time"
)

// Mergeable mirrors GitHub's MergeableState enum.
type Mergeable string

const (
	MergeableMergeable   Mergeable = "MERGEABLE"
	MergeableConflicting Mergeable = "CONFLICTING"
	MergeableUnknown     Mergeable = "UNKNOWN"
)

// MergeState mirrors GitHub's MergeStateStatus enum.
type MergeState string

const (
	MergeStateClean    MergeState = "CLEAN"
	MergeStateBehind   MergeState = "BEHIND"
	MergeStateDirty    MergeState = "DIRTY"
	MergeStateBlocked  MergeState = "BLOCKED"
	MergeStateUnstable MergeState = "UNSTABLE"
	MergeStateHasHooks MergeState = "HAS_HOOKS"
	MergeStateDraft    MergeState = "DRAFT"
	MergeStateUnknown  MergeState = "UNKNOWN"
)

// ReviewDecision is GitHub's aggregated review verdict. Empty means none.
type ReviewDecision string

const (
	ReviewApproved         ReviewDecision = "APPROVED"
	ReviewChangesRequested ReviewDecision = "CHANGES_REQUESTED"
	ReviewRequired         ReviewDecision = "REVIEW_REQUIRED"
)

type Repository struct {
	Name          string
	NameWithOwner string // "owner/name"
}

type Actor struct {
	Login     string
	AvatarURL string
}

// Commit is the most recent commit on the head branch.
type Commit struct {
	OID         string
	RollupState string // "SUCCESS", "FAILURE", "ERROR", "PENDING", "EXPECTED", ""
}

type Review struct {
	Author      string
	State       string // "APPROVED", "CHANGES_REQUESTED", "COMMENTED", ...
	SubmittedAt time.Time
}

// PullRequest is one open pull request as returned by the bulk search.
// It is treated as immutable once decoded.
type PullRequest struct {
	ID             string // GraphQL node id, needed for mutations
	Title          string
	URL            string
	Number         int
	Draft          bool
	Mergeable      Mergeable
	MergeState     MergeState
	HeadRef        string
	BaseRef        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Repository     Repository
	Author         Actor
	LastCommit     *Commit // nil when the PR has no commits
	ReviewDecision ReviewDecision
	Reviews        []Review
	Assignees      []string
}

var jiraPrefix = regexp.MustCompile(`^\[([A-Z]+-\d+)\]`)

func (p *PullRequest) HasNoConflicts() bool {
	return p.Mergeable == MergeableMergeable
}

func (p *PullRequest) HasChangesRequested() bool {
	return p.ReviewDecision == ReviewChangesRequested
}

// HasBeenApproved trusts the API's precedence-resolved review decision;
// a changes-requested verdict always wins.
func (p *PullRequest) HasBeenApproved() bool {
	return p.ReviewDecision == ReviewApproved && !p.HasChangesRequested()
}

func (p *PullRequest) WaitingForReview() bool {
	return !p.Draft &&
		!p.HasBeenApproved() &&
		!p.HasChangesRequested() &&
		p.ReviewDecision == ReviewRequired
}

// IsReadyToBeMerged reports an approved, conflict-free, non-draft PR.
func (p *PullRequest) IsReadyToBeMerged() bool {
	return !p.Draft && p.HasBeenApproved() && p.HasNoConflicts()
}

// IsBlockedByOther reports a PR with nothing wrong on its branch that is only
// waiting for someone else's review.
func (p *PullRequest) IsBlockedByOther() bool {
	return !p.Draft && p.WaitingForReview() && p.HasNoConflicts()
}

// IsStale reports whether the PR was last updated on a different calendar day
// than now, in now's location. This is a date comparison, not a duration:
// an update at 23:59 is stale one minute later.
func (p *PullRequest) IsStale(now time.Time) bool {
	uy, um, ud := p.UpdatedAt.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return uy != ny || um != nm || ud != nd
}

func (p *PullRequest) IsBehind() bool {
	return p.MergeState == MergeStateBehind
}

// JiraKey returns the "[ABC-123]" ticket key at the start of the title, if any.
func (p *PullRequest) JiraKey() (string, bool) {
	m := jiraPrefix.FindStringSubmatch(p.Title)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DisplayTitle is the title with a leading ticket key removed.
func (p *PullRequest) DisplayTitle() string {
	loc := jiraPrefix.FindStringIndex(p.Title)
	if loc == nil {
		return p.Title
	}
	return strings.TrimLeft(p.Title[loc[1]:], " \t")
}

func (p *PullRequest) LatestCommitID() string {
	if p.LastCommit == nil {
		return ""
	}
	return p.LastCommit.OID
}

func (p *PullRequest) CIRollupState() string {
	if p.LastCommit == nil {
		return ""
	}
	return p.LastCommit.RollupState
}

// Owner returns the owning account of the repository.
func (p *PullRequest) Owner() string {
	owner, _, _ := strings.Cut(p.Repository.NameWithOwner, "/")
	return owner
}

// RepoName returns the repository name without its owner.
func (p *PullRequest) RepoName() string {
	if p.Repository.Name != "" {
		return p.Repository.Name
	}
	_, name, _ := strings.Cut(p.Repository.NameWithOwner, "/")
	return name
}

// ApprovedBy lists reviewers whose latest submitted review is an approval.
// Display only: classification relies on ReviewDecision.
func (p *PullRequest) ApprovedBy() []string {
	latest := make(map[string]Review, len(p.Reviews))
	var order []string
	for _, r := range p.Reviews {
		prev, seen := latest[r.Author]
		if !seen {
			order = append(order, r.Author)
		}
		if !seen || !r.SubmittedAt.Before(prev.SubmittedAt) {
			latest[r.Author] = r
		}
	}
	var logins []string
	for _, a := range order {
		if latest[a].State == "APPROVED" {
			logins = append(logins, a)
		}
	}
	return logins
}
