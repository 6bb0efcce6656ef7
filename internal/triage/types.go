package triage

import "prboard/internal/model"

// State is the actionable bucket a pull request falls into.
type State string

const (
	StateDraft          State = "draft"
	StateReady          State = "ready"
	StateBlockedByOther State = "blocked-by-other"
	StateCIFailed       State = "ci-failed"
	StateBlockedOnYou   State = "blocked-on-you"
)

// Display returns a human-readable state
func (s State) Display() string {
	switch s {
	case StateDraft:
		return "Draft"
	case StateReady:
		return "Ready to merge"
	case StateBlockedByOther:
		return "Waiting on review"
	case StateCIFailed:
		return "CI failed"
	case StateBlockedOnYou:
		return "Needs you"
	default:
		return string(s)
	}
}

// ActionKind names a remediation the user can trigger.
type ActionKind string

const (
	ActionMarkReady   ActionKind = "mark-ready"
	ActionSyncBranch  ActionKind = "sync-branch"
	ActionRerunFailed ActionKind = "rerun-failed"
)

// Action is a recommended remediation with everything needed to run it.
// Only the fields relevant to Kind are set.
type Action struct {
	Kind       ActionKind
	NodeID     string // mark-ready
	Owner      string
	Repo       string
	BaseBranch string // sync-branch
	Number     int    // sync-branch
	CommitID   string // rerun-failed
}

// Item is one pull request in the triaged view.
type Item struct {
	PR        *model.PullRequest
	CI        model.CIStatus
	State     State
	Stale     bool
	Actions   []Action
	Enriching bool // a CI enrichment for this item has not arrived yet
}

// HasAction returns the recommended action of the given kind, if any.
func (it Item) HasAction(kind ActionKind) (Action, bool) {
	for _, a := range it.Actions {
		if a.Kind == kind {
			return a, true
		}
	}
	return Action{}, false
}

// Enrichment is the CI result for the item at Index of the triaged slice.
type Enrichment struct {
	Index   int
	URL     string
	CI      model.CIStatus
	State   State
	Actions []Action
}
