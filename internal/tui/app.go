package tui

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"prboard/internal/action"
	"prboard/internal/dashboard"
	"prboard/internal/forge"
	"prboard/internal/model"
	"prboard/internal/triage"
)

// — state ———————————————————————————————————————————————————————————————————

type appState int

const (
	stateNormal appState = iota
	stateOrgPicker
	stateOrgInput
	stateAuthFailed
)

// — spinner —————————————————————————————————————————————————————————————————

var spinnerFrames = []string{"|", "/", "-", "\\"}

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// — messages ————————————————————————————————————————————————————————————————

type authMsg struct {
	login string
	err   error
}

type refreshedMsg struct {
	snap   *dashboard.Snapshot
	enrich <-chan triage.Enrichment
	err    error
}

type enrichedMsg struct {
	refresh uuid.UUID
	en      triage.Enrichment
	next    <-chan triage.Enrichment
}

type enrichDoneMsg struct {
	refresh uuid.UUID
}

type orgsLoadedMsg struct {
	orgs []model.Organization
	err  error
}

type actionDoneMsg struct {
	status action.Status
	err    error
}

type actionStatusMsg struct {
	action.Status
}

// ActionStatus wraps an executor status change for tea.Program.Send.
func ActionStatus(s action.Status) tea.Msg {
	return actionStatusMsg{s}
}

// — list items ——————————————————————————————————————————————————————————————

type prItem struct {
	it          triage.Item
	spinnerChar string
}

func (i prItem) Title() string {
	title := i.it.PR.DisplayTitle()
	if key, ok := i.it.PR.JiraKey(); ok {
		title = key + " " + title
	}
	return indicator(i.it, i.spinnerChar) + " " + title
}

func (i prItem) Description() string {
	desc := fmt.Sprintf("%s#%d · %s", i.it.PR.Repository.NameWithOwner, i.it.PR.Number, i.it.State.Display())
	if i.it.Stale {
		desc += " · stale"
	}
	return desc
}

func (i prItem) FilterValue() string { return i.it.PR.Title }

type orgItem struct {
	org model.Organization
}

func (i orgItem) Title() string       { return i.org.Login }
func (i orgItem) Description() string { return i.org.Description }
func (i orgItem) FilterValue() string { return i.org.Login }

// — model ———————————————————————————————————————————————————————————————————

type Model struct {
	ctx     context.Context
	session *dashboard.Session

	list     list.Model
	items    []triage.Item
	refresh  uuid.UUID
	statuses map[string]action.Status

	orgList  list.Model
	orgInput textinput.Model
	inputErr string

	login        string
	width        int
	height       int
	loading      bool
	err          error
	notice       string
	state        appState
	spinnerFrame int
}

func New(ctx context.Context, s *dashboard.Session) Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Assigned pull requests"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = titleStyle

	ol := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	ol.Title = "Organizations"
	ol.SetShowStatusBar(false)
	ol.SetShowHelp(false)
	ol.Styles.Title = titleStyle

	ti := textinput.New()
	ti.Placeholder = "e.g. acme"
	ti.CharLimit = 39

	return Model{
		ctx:      ctx,
		session:  s,
		list:     l,
		orgList:  ol,
		orgInput: ti,
		statuses: make(map[string]action.Status),
		loading:  true,
	}
}

// — commands ————————————————————————————————————————————————————————————————

func (m Model) authCmd() tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		login, err := s.Authenticate(ctx)
		return authMsg{login: login, err: err}
	}
}

func (m Model) refreshCmd(org string) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		snap, ch, err := s.Refresh(ctx, org)
		return refreshedMsg{snap: snap, enrich: ch, err: err}
	}
}

// waitForEnrichment delivers the next CI result of a refresh, one per message.
func waitForEnrichment(id uuid.UUID, ch <-chan triage.Enrichment) tea.Cmd {
	return func() tea.Msg {
		en, ok := <-ch
		if !ok {
			return enrichDoneMsg{refresh: id}
		}
		return enrichedMsg{refresh: id, en: en, next: ch}
	}
}

func (m Model) loadOrgsCmd(forget bool) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		if forget {
			if err := s.ForgetOrganizations(ctx); err != nil {
				s.Logger.Warn("forget organizations", zap.Error(err))
			}
		}
		orgs, err := s.Organizations(ctx)
		return orgsLoadedMsg{orgs: orgs, err: err}
	}
}

func (m Model) runActionCmd(a triage.Action) tea.Cmd {
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		st, err := s.Run(ctx, a)
		return actionDoneMsg{status: st, err: err}
	}
}

func openURLCmd(url string) tea.Cmd {
	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			cmd = exec.Command("xdg-open", url)
		}
		_ = cmd.Run()
		return nil
	}
}

// buildItems rebuilds the list items with the current spinner frame.
func (m *Model) buildItems() {
	char := spinnerFrames[m.spinnerFrame]
	items := make([]list.Item, len(m.items))
	for i, it := range m.items {
		items[i] = prItem{it: it, spinnerChar: char}
	}
	m.list.SetItems(items)
}

func (m Model) enriching() bool {
	for _, it := range m.items {
		if it.Enriching {
			return true
		}
	}
	return false
}

// — tea.Model ———————————————————————————————————————————————————————————————

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.authCmd(), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		lw, lh := m.listDimensions()
		m.list.SetSize(lw, lh)
		m.orgList.SetSize(48, max(msg.Height-8, 5))
		return m, nil

	case tickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		if m.enriching() {
			m.buildItems()
		}
		return m, tickCmd()

	case authMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			if errors.Is(msg.err, forge.ErrAuthInvalid) {
				m.state = stateAuthFailed
			}
			return m, nil
		}
		m.login = msg.login
		m.err = nil
		if org := m.session.Workspace.Current(); org != "" {
			return m, m.refreshCmd(org)
		}
		m.loading = false
		return m, m.loadOrgsCmd(false)

	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			if errors.Is(msg.err, forge.ErrAuthInvalid) {
				m.state = stateAuthFailed
			}
			return m, nil
		}
		if msg.snap.Org != m.session.Workspace.Current() {
			return m, nil
		}
		m.err = nil
		m.refresh = msg.snap.ID
		m.items = msg.snap.Items
		m.buildItems()
		return m, waitForEnrichment(msg.snap.ID, msg.enrich)

	case enrichedMsg:
		if msg.refresh != m.refresh {
			return m, nil
		}
		triage.Apply(m.items, msg.en)
		m.buildItems()
		return m, waitForEnrichment(msg.refresh, msg.next)

	case enrichDoneMsg:
		return m, nil

	case orgsLoadedMsg:
		m.inputErr = ""
		if msg.err != nil {
			m.inputErr = msg.err.Error()
		}
		items := make([]list.Item, len(msg.orgs))
		for i, o := range msg.orgs {
			items[i] = orgItem{org: o}
		}
		m.orgList.SetItems(items)
		if len(items) == 0 {
			return m.openOrgInput()
		}
		m.state = stateOrgPicker
		return m, nil

	case actionDoneMsg:
		if errors.Is(msg.err, action.ErrInFlight) {
			m.notice = "That action is already running"
			return m, nil
		}
		if msg.err != nil {
			m.notice = msg.status.Message
			return m, nil
		}
		m.notice = msg.status.Message
		return m, m.refreshCmd(m.session.Workspace.Current())

	case actionStatusMsg:
		if msg.Phase == action.PhaseIdle {
			delete(m.statuses, msg.ID)
		} else {
			m.statuses[msg.ID] = msg.Status
		}
		return m, nil
	}

	switch m.state {
	case stateOrgPicker:
		return m.updateOrgPicker(msg)
	case stateOrgInput:
		return m.updateOrgInput(msg)
	case stateAuthFailed:
		return m.updateAuthFailed(msg)
	default:
		return m.updateNormal(msg)
	}
}

func (m Model) updateNormal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.notice = ""
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.login == "" {
				m.loading = true
				return m, m.authCmd()
			}
			org := m.session.Workspace.Current()
			if org == "" {
				return m, m.loadOrgsCmd(false)
			}
			m.loading = true
			return m, m.refreshCmd(org)
		case "w":
			return m, m.loadOrgsCmd(false)
		case "o":
			if it := m.selectedItem(); it != nil {
				return m, openURLCmd(it.PR.URL)
			}
			return m, nil
		case "c":
			if it := m.selectedItem(); it != nil && len(it.CI.FailedChecks) > 0 && it.CI.FailedChecks[0].Link != "" {
				return m, openURLCmd(it.CI.FailedChecks[0].Link)
			}
			return m, nil
		case "m":
			return m.runAction(triage.ActionMarkReady)
		case "s":
			return m.runAction(triage.ActionSyncBranch)
		case "f":
			return m.runAction(triage.ActionRerunFailed)
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) runAction(kind triage.ActionKind) (tea.Model, tea.Cmd) {
	it := m.selectedItem()
	if it == nil {
		return m, nil
	}
	a, ok := it.HasAction(kind)
	if !ok {
		m.notice = fmt.Sprintf("%s is not available for #%d", actionLabel(kind), it.PR.Number)
		return m, nil
	}
	if m.session.Executor.Busy(action.ID(a)) {
		m.notice = "That action is already running"
		return m, nil
	}
	return m, m.runActionCmd(a)
}

func (m Model) updateOrgPicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && m.orgList.FilterState() != list.Filtering {
		switch km.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.session.Workspace.Current() != "" {
				m.state = stateNormal
			}
			return m, nil
		case "i":
			return m.openOrgInput()
		case "R":
			return m, m.loadOrgsCmd(true)
		case "enter":
			if sel, ok := m.orgList.SelectedItem().(orgItem); ok {
				return m.selectOrg(sel.org.Login)
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.orgList, cmd = m.orgList.Update(msg)
	return m, cmd
}

func (m Model) openOrgInput() (tea.Model, tea.Cmd) {
	m.state = stateOrgInput
	m.orgInput.Reset()
	m.orgInput.Focus()
	return m, textinput.Blink
}

func (m Model) updateOrgInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.orgInput.Blur()
			m.inputErr = ""
			if len(m.orgList.Items()) > 0 {
				m.state = stateOrgPicker
			} else if m.session.Workspace.Current() != "" {
				m.state = stateNormal
			}
			return m, nil
		case "enter":
			org := strings.TrimSpace(m.orgInput.Value())
			if org == "" {
				m.inputErr = "organization cannot be empty"
				return m, nil
			}
			m.orgInput.Blur()
			m.inputErr = ""
			return m.selectOrg(org)
		}
	}
	var cmd tea.Cmd
	m.orgInput, cmd = m.orgInput.Update(msg)
	return m, cmd
}

// selectOrg switches the workspace and reloads. Picking the current
// organization again just refreshes it.
func (m Model) selectOrg(org string) (tea.Model, tea.Cmd) {
	m.state = stateNormal
	if m.session.Workspace.Select(org) {
		m.items = nil
		m.refresh = uuid.Nil
		m.list.SetItems(nil)
		m.list.ResetSelected()
	}
	m.loading = true
	m.err = nil
	return m, m.refreshCmd(m.session.Workspace.Current())
}

func (m Model) updateAuthFailed(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c", "q", "esc", "enter":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) selectedItem() *triage.Item {
	if len(m.items) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.items) {
		return nil
	}
	return &m.items[idx]
}
