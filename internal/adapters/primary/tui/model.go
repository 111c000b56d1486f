// Package tui renders the live merge request dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/canton7/gitlab-mr-viewer/internal/core/app"
	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
	"github.com/canton7/gitlab-mr-viewer/internal/format/ascii"
	"github.com/canton7/gitlab-mr-viewer/internal/ticket"
)

// ClientUpdatedMsg tells the model that the poll client has new state.
// The owner of the tea.Program sends it from the client's update hook.
type ClientUpdatedMsg struct{}

type refreshDoneMsg struct{}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Model is the bubbletea model for the watch view. It holds no copy of
// the data; every View call reads the client's current snapshot.
type Model struct {
	client *app.Client
	spin   spinner.Model
	width  int
	height int
}

func NewModel(client *app.Client) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return Model{client: client, spin: spin}
}

func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			client := m.client

			return m, func() tea.Msg {
				_ = client.Refresh(context.Background())

				return refreshDoneMsg{}
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)

		return m, cmd
	case ClientUpdatedMsg, refreshDoneMsg:
		// View pulls fresh data from the client; nothing to store.
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	state := m.client.State()
	b.WriteString(m.header(state))
	b.WriteString("\n\n")

	switch state.Kind {
	case domain.StateUnconfigured:
		b.WriteString(dimStyle.Render("No access token configured."))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("Run \"gitlab-mr-viewer config\" or set GITLAB_MR_VIEWER_TOKEN."))
		b.WriteString("\n")

		return b.String()
	case domain.StateLoading:
		if len(m.client.Assigned()) == 0 && len(m.client.Reviewing()) == 0 {
			b.WriteString(m.spin.View())
			b.WriteString(" fetching merge requests...\n")

			return b.String()
		}
	case domain.StateError:
		b.WriteString(errorStyle.Render("refresh failed: " + state.Err.Error()))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("showing last known data"))
		b.WriteString("\n\n")
	case domain.StateLoaded:
	}

	b.WriteString(m.section("Assigned to you", m.client.Assigned()))
	b.WriteString(m.section("Reviewing", m.client.Reviewing()))
	b.WriteString(m.activitySection(m.client.Activities()))

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("r refresh · q quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) header(state domain.ClientState) string {
	status := state.Kind.String()
	if state.Kind == domain.StateLoading {
		status = m.spin.View() + status
	}

	return titleStyle.Render("GitLab merge requests") + dimStyle.Render(" · "+status)
}

func (m Model) section(heading string, mrs []*domain.MergeRequest) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render(heading))
	b.WriteString("\n")

	if len(mrs) == 0 {
		b.WriteString(dimStyle.Render("  nothing open"))
		b.WriteString("\n\n")

		return b.String()
	}

	for _, mr := range mrs {
		b.WriteString("  ")
		b.WriteString(approvalMark(mr))
		b.WriteString(" ")
		b.WriteString(hyperlink(mr.Reference, mr.WebURL))
		b.WriteString(" ")
		b.WriteString(renderTitle(mr))
		b.WriteString("\n")

		b.WriteString(dimStyle.Render(fmt.Sprintf(
			"      by %s · %s · ci %s · updated %s",
			mr.AuthorName,
			discussionSummary(mr),
			ciSummary(mr),
			ascii.Ago(mr.UpdatedAt, time.Now()),
		)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	return b.String()
}

func (m Model) activitySection(activities []*domain.Activity) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Activity"))
	b.WriteString("\n")

	if len(activities) == 0 {
		b.WriteString(dimStyle.Render("  nothing yet"))
		b.WriteString("\n")

		return b.String()
	}

	// The feed can get long; the newest entries matter most.
	limit := len(activities)
	if m.height > 0 {
		if visible := m.height / 2; visible > 0 && visible < limit {
			limit = visible
		}
	}

	for _, activity := range activities[:limit] {
		b.WriteString(fmt.Sprintf(
			"  %s %s %s %s\n",
			dimStyle.Render(ascii.Ago(activity.UpdatedAt, time.Now())),
			activity.AuthorName,
			activity.Body,
			dimStyle.Render("("+activity.MergeRequest.Reference+")"),
		))
	}

	return b.String()
}

// renderTitle writes the merge request title with any ticket keys
// turned into terminal hyperlinks.
func renderTitle(mr *domain.MergeRequest) string {
	integration := mr.Ticket
	if integration == nil {
		integration = ticket.Noop{}
	}

	var b strings.Builder
	for _, span := range ticket.Annotate(mr.Title, integration) {
		if span.URL == "" {
			b.WriteString(span.Text)

			continue
		}
		b.WriteString(hyperlink(span.Text, span.URL))
	}

	return b.String()
}

func approvalMark(mr *domain.MergeRequest) string {
	if mr.IsApproved {
		return okStyle.Render("✓")
	}

	return dimStyle.Render("·")
}

func discussionSummary(mr *domain.MergeRequest) string {
	if mr.TotalDiscussions == 0 {
		return "no discussions"
	}
	if mr.OpenDiscussions > 0 {
		return warnStyle.Render(fmt.Sprintf("%d/%d discussions open", mr.OpenDiscussions, mr.TotalDiscussions))
	}

	return fmt.Sprintf("%d discussions resolved", mr.TotalDiscussions)
}

func ciSummary(mr *domain.MergeRequest) string {
	switch mr.CIStatus {
	case domain.CIStatusNone:
		return "-"
	case "success":
		return okStyle.Render(hyperlinkOr(mr.CIStatus, mr.CILink))
	case "failed":
		return errorStyle.Render(hyperlinkOr(mr.CIStatus, mr.CILink))
	default:
		return hyperlinkOr(mr.CIStatus, mr.CILink)
	}
}

// hyperlink emits an OSC 8 terminal hyperlink. BEL terminators survive
// tmux and SSH better than ST.
func hyperlink(text, url string) string {
	return fmt.Sprintf("\x1b]8;;%s\x07%s\x1b]8;;\x07", url, text)
}

func hyperlinkOr(text, url string) string {
	if url == "" {
		return text
	}

	return hyperlink(text, url)
}
