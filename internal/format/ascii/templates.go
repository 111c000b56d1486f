// Package ascii renders merge request overviews as plain terminal text.
package ascii

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
	"time"

	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
)

const (
	titleMaxLen = 70
	titleTrunc  = 67

	bodyMaxLen = 80
	bodyTrunc  = 77
)

//go:embed overview.tmpl
var overviewTemplate string

// OverviewData holds data for the overview template.
type OverviewData struct {
	Assigned  []*domain.MergeRequest
	Reviewing []*domain.MergeRequest
	Activity  []*domain.Activity
	Timestamp time.Time
}

// FormatOverview renders the assigned and reviewing lists plus the
// activity feed.
func FormatOverview(
	assigned, reviewing []*domain.MergeRequest,
	activity []*domain.Activity,
) (string, error) {
	tmpl, err := template.New("overview").Funcs(templateFuncs()).Parse(overviewTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	data := OverviewData{
		Assigned:  assigned,
		Reviewing: reviewing,
		Activity:  activity,
		Timestamp: time.Now(),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"ago": func(t time.Time) string {
			return Ago(t, time.Now())
		},
		"truncateTitle": func(s string) string {
			return truncate(s, titleMaxLen, titleTrunc)
		},
		"truncateBody": func(s string) string {
			return truncate(s, bodyMaxLen, bodyTrunc)
		},
		"bold": func(text string) string {
			return "\033[1m" + text + "\033[0m"
		},
		"approvedMark": func(mr *domain.MergeRequest) string {
			if mr.IsApproved {
				return "✓"
			}

			return " "
		},
		"discussions": func(mr *domain.MergeRequest) string {
			if mr.TotalDiscussions == 0 {
				return "-"
			}

			return fmt.Sprintf("%d/%d", mr.OpenDiscussions, mr.TotalDiscussions)
		},
		"ciStatus": func(mr *domain.MergeRequest) string {
			if mr.CIStatus == domain.CIStatusNone {
				return "-"
			}

			return mr.CIStatus
		},
	}
}

// Ago renders a compact relative timestamp such as "5m ago".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, maxLen, truncLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	return string(runes[:truncLen]) + "..."
}
