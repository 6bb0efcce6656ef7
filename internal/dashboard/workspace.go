package dashboard

import (
	"strings"
	"sync"
)

// Workspace holds the currently selected organization and tells its
// subscribers when it changes.
type Workspace struct {
	mu        sync.Mutex
	org       string
	observers []func(org string)
}

func NewWorkspace(org string) *Workspace {
	return &Workspace{org: strings.TrimSpace(org)}
}

func (w *Workspace) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.org
}

// Subscribe registers fn to be called after every change of organization.
func (w *Workspace) Subscribe(fn func(org string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, fn)
}

// Select switches to org. It returns false, and notifies nobody, when org is
// blank or already selected.
func (w *Workspace) Select(org string) bool {
	org = strings.TrimSpace(org)

	w.mu.Lock()
	if org == "" || org == w.org {
		w.mu.Unlock()
		return false
	}
	w.org = org
	observers := append([]func(string){}, w.observers...)
	w.mu.Unlock()

	for _, fn := range observers {
		fn(org)
	}
	return true
}
