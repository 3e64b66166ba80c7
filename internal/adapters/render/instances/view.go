package instances

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/agvtools/agv-instances-cli/internal/domain"
)

// Row pairs an instance listing entry with its live process state.
type Row struct {
	Summary          domain.InstanceSummary
	CurrentAccountID domain.AccountID
	Running          bool
}

// Overview is everything the instances view shows: the registry listing and
// the current per-category account recommendations.
type Overview struct {
	Rows            []Row
	Recommendations []domain.Recommendation
	Accounts        map[domain.AccountID]domain.Account
}

type RenderOptions struct {
	Now time.Time
}

func renderView(overview Overview, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Antigravity Instances"),
		s.header.Render(fmt.Sprintf("instances: %d", len(overview.Rows))),
	}

	if len(overview.Rows) == 0 {
		lines = append(lines, s.empty.Render("No instances registered."))
	}

	for _, row := range overview.Rows {
		lines = append(lines, s.section.Render(renderRow(row, overview.Accounts, s)))
	}

	if len(overview.Recommendations) > 0 {
		lines = append(lines, s.section.Render(renderRecommendations(overview.Recommendations, overview.Accounts, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderRow(row Row, accounts map[domain.AccountID]domain.Account, s styles) string {
	title := s.name.Render(row.Summary.Name)
	if row.Summary.IsDefault {
		title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", s.marker.Render("[default]"))
	}

	state := s.stopped.Render("stopped")
	if row.Running {
		state = s.running.Render("running")
	}
	title = lipgloss.JoinHorizontal(lipgloss.Top, title, " ", state)

	details := []string{
		s.detail.Render(fmt.Sprintf("id: %s", row.Summary.ID)),
		s.detail.Render(fmt.Sprintf("dir: %s", row.Summary.UserDataDir)),
		s.detail.Render(accountsLine(row, accounts)),
	}

	parts := append([]string{title}, details...)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func accountsLine(row Row, accounts map[domain.AccountID]domain.Account) string {
	if row.Summary.AccountCount == 0 {
		return "accounts: none"
	}

	line := fmt.Sprintf("accounts: %d", row.Summary.AccountCount)
	if row.CurrentAccountID != "" {
		line += fmt.Sprintf(", current: %s", accountLabel(row.CurrentAccountID, accounts))
	}

	return line
}

func renderRecommendations(recommendations []domain.Recommendation, accounts map[domain.AccountID]domain.Account, opts RenderOptions, s styles) string {
	parts := []string{s.title.Render("Recommended accounts")}

	for _, rec := range recommendations {
		label := s.category.Render(fmt.Sprintf("%s:", rec.Category))
		bar := renderQuotaBar(rec.Score, 24, s)

		line := fmt.Sprintf("%s (%d%% quota)", accountLabel(rec.AccountID, accounts), rec.Score)
		if reset := nextQuotaReset(accounts[rec.AccountID], opts.Now); reset != "" {
			line += ", " + reset
		}
		meta := s.detail.Render(line)

		parts = append(parts, lipgloss.JoinHorizontal(lipgloss.Top, label, " ", bar, " ", meta))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// nextQuotaReset reports the earliest upcoming quota reset across the
// account's models, relative to now. Accounts without a pending reset render
// nothing extra.
func nextQuotaReset(account domain.Account, now time.Time) string {
	if account.Quota == nil || now.IsZero() {
		return ""
	}

	var earliest time.Time
	for _, model := range account.Quota.Models {
		if model.ResetAt.IsZero() || !model.ResetAt.After(now) {
			continue
		}
		if earliest.IsZero() || model.ResetAt.Before(earliest) {
			earliest = model.ResetAt
		}
	}

	if earliest.IsZero() {
		return ""
	}

	return fmt.Sprintf("resets in %s", earliest.Sub(now).Round(time.Minute))
}

func accountLabel(id domain.AccountID, accounts map[domain.AccountID]domain.Account) string {
	if account, ok := accounts[id]; ok && account.Email != "" {
		return account.Email
	}

	return string(id)
}

func renderQuotaBar(percent, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * float64(clampPercent(percent)) / 100.0))
	if filled > width {
		filled = width
	}

	fillSegment := s.barFill.Render(strings.Repeat("=", filled))
	emptySegment := s.barEmpty.Render(strings.Repeat("-", width-filled))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		fillSegment,
		emptySegment,
		s.barBracket.Render("]"),
	)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
