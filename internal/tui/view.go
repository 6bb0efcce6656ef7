package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"prboard/internal/action"
	"prboard/internal/forge"
	"prboard/internal/model"
	"prboard/internal/quota"
	"prboard/internal/triage"
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			PaddingLeft(2)

	headerStyle = lipgloss.NewStyle().PaddingLeft(2)

	detailHeadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().Faint(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 3).
			Width(58)

	authModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 3).
			Width(58)
)

var actionKeys = []struct {
	kind  triage.ActionKind
	key   string
	label string
}{
	{triage.ActionMarkReady, "m", "Mark ready"},
	{triage.ActionSyncBranch, "s", "Sync with base"},
	{triage.ActionRerunFailed, "f", "Re-run failed jobs"},
}

func actionLabel(kind triage.ActionKind) string {
	for _, k := range actionKeys {
		if k.kind == kind {
			return k.label
		}
	}
	return string(kind)
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	switch m.state {
	case stateAuthFailed:
		return m.renderAuthFailed()
	case stateOrgPicker:
		return m.renderOrgPicker()
	case stateOrgInput:
		return m.renderOrgInput()
	}

	if m.loading && len(m.items) == 0 && m.err == nil {
		return lipgloss.NewStyle().Padding(1, 2).Render("Loading pull requests…")
	}

	if m.err != nil && len(m.items) == 0 {
		return lipgloss.NewStyle().Padding(1, 2).Render(
			fmt.Sprintf("Error: %s\n\nPress r to retry, w to switch organization, q to quit.", describeError(m.err)),
		)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), m.renderDetail())
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), body, m.renderHelp())
}

// — layout helpers ——————————————————————————————————————————————————————————

const headerHeight = 2

func (m Model) listDimensions() (width, height int) {
	return m.width / 3, m.height - 2 - headerHeight
}

func (m Model) renderHeader() string {
	parts := []string{boldStyle.Render(m.session.Workspace.Current())}
	if m.login != "" {
		parts = append(parts, dimStyle.Render("@"+m.login))
	}
	if m.loading {
		parts = append(parts, dimStyle.Render("refreshing "+spinnerFrames[m.spinnerFrame]))
	}
	if banner := quotaBanner(m.session.Quota, time.Now()); banner != "" {
		parts = append(parts, warnStyle.Render(banner))
	}

	line2 := ""
	switch {
	case m.err != nil:
		line2 = errStyle.Render(describeError(m.err))
	case m.notice != "":
		line2 = m.notice
	}
	return headerStyle.Render(strings.Join(parts, "  ")) + "\n" + headerStyle.Render(line2)
}

func (m Model) renderDetail() string {
	lw, _ := m.listDimensions()
	dw := m.width - lw
	dh := m.height - 2 - headerHeight

	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		PaddingLeft(3).
		PaddingRight(2).
		Width(dw - 1).
		Height(dh)

	contentWidth := (dw - 1) - 3 - 2

	it := m.selectedItem()
	if it == nil {
		return style.Render(dimStyle.Render("No open pull requests assigned to you"))
	}
	pr := it.PR

	row := func(lbl, val string) string {
		return labelStyle.Render(lbl) + val + "\n"
	}

	var b strings.Builder
	b.WriteString(detailHeadStyle.Render(truncate(pr.DisplayTitle(), contentWidth)) + "\n\n")
	b.WriteString(row("PR       ", fmt.Sprintf("%s#%d", pr.Repository.NameWithOwner, pr.Number)))
	if key, ok := pr.JiraKey(); ok {
		b.WriteString(row("Ticket   ", key))
	}
	b.WriteString(row("Author   ", pr.Author.Login))
	b.WriteString(row("Branch   ", pr.HeadRef+" → "+pr.BaseRef))
	b.WriteString(row("State    ", stateLabel(it.State)))
	updated := formatAge(time.Now(), pr.UpdatedAt)
	if it.Stale {
		updated += " " + warnStyle.Render("(stale)")
	}
	b.WriteString(row("Updated  ", updated))
	b.WriteString(row("Review   ", reviewLabel(pr)))
	b.WriteString(row("Merge    ", mergeLabel(pr)))
	b.WriteString(row("CI       ", ciLabel(it.CI.State, it.Enriching)))

	for _, fc := range it.CI.FailedChecks {
		b.WriteString("         " + errStyle.Render("✗ "+fc.Name) + "\n")
		if fc.Link != "" {
			b.WriteString("           " + dimStyle.Render(truncate(fc.Link, contentWidth-11)) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render(strings.Repeat("─", max(contentWidth, 0))) + "\n\n")

	if len(it.Actions) == 0 {
		b.WriteString(dimStyle.Render("Nothing to do here") + "\n")
	}
	for _, k := range actionKeys {
		a, ok := it.HasAction(k.kind)
		if !ok {
			continue
		}
		b.WriteString(actionLine(k.key, k.label, m.statuses[action.ID(a)]) + "\n")
	}

	return style.Render(b.String())
}

func (m Model) renderHelp() string {
	text := "↑/↓ navigate   o open   c open check   m ready   s sync   f re-run   w org   r refresh   q quit"
	sep := dimStyle.Render(strings.Repeat("─", m.width))
	return sep + "\n" + helpStyle.Render(text)
}

func (m Model) renderOrgPicker() string {
	var b strings.Builder
	b.WriteString(m.orgList.View() + "\n")
	if m.inputErr != "" {
		b.WriteString("\n" + errStyle.Render(m.inputErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Enter select · / filter · i type a name · R reload · Esc back"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modalStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func (m Model) renderOrgInput() string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Switch organization") + "\n\n")
	b.WriteString("Organization login\n")
	b.WriteString(m.orgInput.View() + "\n")
	if m.inputErr != "" {
		b.WriteString("\n" + errStyle.Render(m.inputErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Shows open pull requests assigned to you in this organization"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modalStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func (m Model) renderAuthFailed() string {
	var b strings.Builder
	b.WriteString(errStyle.Render("Credential rejected") + "\n\n")
	b.WriteString(describeError(m.err) + "\n\n")
	b.WriteString("Set a valid GITHUB_TOKEN, or run gh auth login when using the gh transport, then start prboard again.\n")
	b.WriteString("\n" + dimStyle.Render("q to quit"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, authModalStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

// — pure helpers ————————————————————————————————————————————————————————————

func indicator(it triage.Item, spinner string) string {
	switch {
	case it.Enriching && it.CI.State.Failed():
		return spinner
	case it.State == triage.StateReady:
		return okStyle.Render("✓")
	case it.CI.State.Failed():
		return errStyle.Render("✗")
	case it.State == triage.StateBlockedByOther:
		return dimStyle.Render("…")
	case it.State == triage.StateDraft:
		return dimStyle.Render("◌")
	default:
		return warnStyle.Render("●")
	}
}

func stateLabel(s triage.State) string {
	switch s {
	case triage.StateReady:
		return okStyle.Render(s.Display())
	case triage.StateCIFailed, triage.StateBlockedOnYou:
		return warnStyle.Render(s.Display())
	default:
		return dimStyle.Render(s.Display())
	}
}

func ciLabel(s model.CIState, enriching bool) string {
	var label string
	switch s {
	case model.CISuccess:
		label = okStyle.Render("✅ passed")
	case model.CIFailure:
		label = errStyle.Render("❌ failed")
	case model.CIError:
		label = errStyle.Render("❌ errored")
	case model.CIPending:
		label = warnStyle.Render("⏳ running")
	default:
		label = dimStyle.Render("—")
	}
	if enriching && s.Failed() {
		label += dimStyle.Render(" (loading checks)")
	}
	return label
}

func reviewLabel(pr *model.PullRequest) string {
	switch {
	case pr.HasChangesRequested():
		return warnStyle.Render("changes requested")
	case pr.HasBeenApproved():
		if by := pr.ApprovedBy(); len(by) > 0 {
			return okStyle.Render("approved by " + strings.Join(by, ", "))
		}
		return okStyle.Render("approved")
	case pr.WaitingForReview():
		return dimStyle.Render("review required")
	default:
		return dimStyle.Render("—")
	}
}

func mergeLabel(pr *model.PullRequest) string {
	switch {
	case pr.Mergeable == model.MergeableConflicting:
		return errStyle.Render("conflicts")
	case pr.IsBehind():
		return warnStyle.Render("behind " + pr.BaseRef)
	case pr.Mergeable == model.MergeableUnknown:
		return dimStyle.Render("checking")
	default:
		return okStyle.Render("clean")
	}
}

func actionLine(key, label string, st action.Status) string {
	line := boldStyle.Render("["+key+"]") + " " + label
	switch st.Phase {
	case action.PhaseInFlight:
		return line + "  " + dimStyle.Render(st.Message)
	case action.PhaseSuccess:
		return line + "  " + okStyle.Render("✓ "+st.Message)
	case action.PhaseWarning:
		return line + "  " + warnStyle.Render("⚠ "+st.Message)
	case action.PhaseError:
		return line + "  " + errStyle.Render("✗ "+st.Message)
	default:
		return line
	}
}

// quotaBanner warns once the last reported budget is low.
func quotaBanner(t *quota.Tracker, now time.Time) string {
	if t == nil || !t.Low() {
		return ""
	}
	rl, _ := t.Snapshot()
	msg := fmt.Sprintf("API quota low: %d of %d left", rl.Remaining, rl.Limit)
	if !rl.Reset.IsZero() && rl.Reset.After(now) {
		msg += fmt.Sprintf(", resets in %s", rl.Reset.Sub(now).Round(time.Minute))
	}
	return msg
}

func describeError(err error) string {
	switch forge.KindOf(err) {
	case forge.KindAuthInvalid:
		return "GitHub rejected the credential."
	case forge.KindRateLimited:
		return "GitHub rate limit reached. Wait for the quota to reset, then press r."
	case forge.KindTransport:
		return "Could not reach GitHub: " + err.Error()
	default:
		return err.Error()
	}
}

func formatAge(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
