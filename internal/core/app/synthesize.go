package app

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
	"github.com/canton7/gitlab-mr-viewer/internal/ticket"
	"golang.org/x/sync/errgroup"
)

// combineWindow is the maximum gap between two review comments by the
// same author for them to count as a single burst of activity.
const combineWindow = 5 * time.Minute

// reviewCommentsMarker is the platform's own summary note emitted when
// a review is submitted. The individual comments are surfaced through
// their threads, so the marker itself is noise.
const reviewCommentsMarker = "left review comments"

var mentionPattern = regexp.MustCompile(`\B@([A-Za-z0-9_][A-Za-z0-9_.-]*)`)

func (c *Client) assembleMergeRequest(
	ctx context.Context,
	repo Repository,
	user *domain.User,
	raw *domain.RawMergeRequest,
	role domain.Role,
) (*domain.MergeRequest, []*domain.Activity, error) {
	var (
		approved    bool
		discussions []*domain.Discussion
		statuses    []*domain.CommitStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		approved, err = repo.IsApproved(gctx, raw.ProjectID, raw.IID)
		if err != nil {
			return fmt.Errorf("failed to get approvals for %s: %w", raw.Reference, err)
		}

		return nil
	})
	g.Go(func() error {
		var err error
		discussions, err = repo.ListDiscussions(gctx, raw.ProjectID, raw.IID)
		if err != nil {
			return fmt.Errorf("failed to list discussions for %s: %w", raw.Reference, err)
		}

		return nil
	})
	if raw.SHA != "" {
		g.Go(func() error {
			var err error
			statuses, err = repo.ListCommitStatuses(gctx, raw.ProjectID, raw.SHA)
			if err != nil {
				return fmt.Errorf("failed to list commit statuses for %s: %w", raw.Reference, err)
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	integration, err := c.resolveTicket(ctx, repo, raw.ProjectID)
	if err != nil {
		return nil, nil, err
	}

	mr := buildMergeRequest(raw, role, approved, discussions, statuses, integration)

	activities, err := c.createActivities(ctx, repo, user, discussions, mr)
	if err != nil {
		return nil, nil, err
	}

	return mr, activities, nil
}

// buildMergeRequest folds the fan-out results into the published model.
// Discussion counters consider only the first note of each discussion:
// replies to a resolvable thread do not open threads of their own.
func buildMergeRequest(
	raw *domain.RawMergeRequest,
	role domain.Role,
	approved bool,
	discussions []*domain.Discussion,
	statuses []*domain.CommitStatus,
	integration ticket.Integration,
) *domain.MergeRequest {
	var (
		open, total   int
		firstOpenNote *int
	)
	for _, d := range discussions {
		if len(d.Notes) == 0 {
			continue
		}
		first := d.Notes[0]
		if !first.Resolvable {
			continue
		}
		total++
		if !first.Resolved {
			open++
			if firstOpenNote == nil {
				id := first.ID
				firstOpenNote = &id
			}
		}
	}

	ciStatus := domain.CIStatusNone
	ciLink := ""
	if len(statuses) > 0 {
		ciStatus = statuses[0].Status
		ciLink = statuses[0].TargetURL
	}

	return &domain.MergeRequest{
		Key:              fmt.Sprintf("%d-%d", raw.ProjectID, raw.ID),
		Role:             role,
		Title:            raw.Title,
		WebURL:           raw.WebURL,
		Reference:        raw.Reference,
		AuthorName:       raw.AuthorName,
		AssigneeName:     raw.AssigneeName,
		ReviewerName:     raw.ReviewerName,
		CreatedAt:        raw.CreatedAt,
		UpdatedAt:        raw.UpdatedAt,
		IsApproved:       approved,
		FirstOpenNoteID:  firstOpenNote,
		OpenDiscussions:  open,
		TotalDiscussions: total,
		CIStatus:         ciStatus,
		CILink:           ciLink,
		Ticket:           integration,
	}
}

// createActivities turns a merge request's discussions into feed
// entries. Individual system notes become one activity each; threaded
// comments are pooled across discussions and collapsed into per-author
// bursts so a review pass reads as one line, not thirty.
func (c *Client) createActivities(
	ctx context.Context,
	repo Repository,
	user *domain.User,
	discussions []*domain.Discussion,
	mr *domain.MergeRequest,
) ([]*domain.Activity, error) {
	var (
		activities []*domain.Activity
		threaded   []domain.Note
	)

	for _, d := range discussions {
		if len(d.Notes) == 0 {
			continue
		}

		if !d.IndividualNote {
			threaded = append(threaded, d.Notes...)

			continue
		}

		if len(d.Notes) != 1 || !d.Notes[0].System {
			continue
		}

		note := d.Notes[0]
		body, _, _ := strings.Cut(note.Body, "\n")
		if body == "" || body == reviewCommentsMarker {
			continue
		}

		body, err := c.expandMentions(ctx, repo, user, body)
		if err != nil {
			return nil, err
		}

		id := note.ID
		activities = append(activities, &domain.Activity{
			Key:          d.ID,
			Body:         body,
			UpdatedAt:    note.UpdatedAt,
			NoteID:       &id,
			AuthorName:   note.AuthorName,
			MergeRequest: mr,
		})
	}

	sort.SliceStable(threaded, func(i, j int) bool {
		return threaded[i].CreatedAt.Before(threaded[j].CreatedAt)
	})
	activities = append(activities, collapseNotes(threaded, mr)...)

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].UpdatedAt.Before(activities[j].UpdatedAt)
	})

	return activities, nil
}

// collapseNotes groups notes (already sorted ascending by creation
// time) into per-author bursts. A gap of combineWindow or more between
// consecutive notes from the same author closes the burst; bursts of
// different authors run concurrently without interrupting each other.
// Each burst is stamped with its first note's creation time and keyed
// by its first note's id, so a burst keeps its identity while later
// comments join it.
func collapseNotes(notes []domain.Note, mr *domain.MergeRequest) []*domain.Activity {
	type burst struct {
		first domain.Note
		last  time.Time
		count int
	}

	var out []*domain.Activity
	flush := func(b *burst) {
		out = append(out, &domain.Activity{
			Key:          fmt.Sprintf("synthesized-add-comments-%d", b.first.ID),
			Body:         fmt.Sprintf("added %d comment(s)", b.count),
			UpdatedAt:    b.first.CreatedAt,
			AuthorName:   b.first.AuthorName,
			MergeRequest: mr,
		})
	}

	open := make(map[int]*burst)
	for _, note := range notes {
		if b := open[note.AuthorID]; b != nil {
			if note.CreatedAt.Sub(b.last) < combineWindow {
				b.last = note.CreatedAt
				b.count++

				continue
			}
			flush(b)
		}
		open[note.AuthorID] = &burst{first: note, last: note.CreatedAt, count: 1}
	}
	for _, b := range open {
		flush(b)
	}

	return out
}

// expandMentions replaces @username references with the user's display
// name. Unknown usernames are left as written.
func (c *Client) expandMentions(
	ctx context.Context,
	repo Repository,
	user *domain.User,
	body string,
) (string, error) {
	matches := mentionPattern.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		username := body[m[2]:m[3]]
		name, err := c.resolveUserName(ctx, repo, user, username)
		if err != nil {
			return "", err
		}

		b.WriteString(body[last:m[0]])
		if name == "" {
			b.WriteString(body[m[0]:m[1]])
		} else {
			b.WriteString(name)
		}
		last = m[1]
	}
	b.WriteString(body[last:])

	return b.String(), nil
}

// resolveUserName maps a username to a display name, memoized for the
// lifetime of the session. The current user never needs a lookup, and
// a username with no match is remembered as empty so the same missing
// user is not searched for on every poll.
func (c *Client) resolveUserName(
	ctx context.Context,
	repo Repository,
	current *domain.User,
	username string,
) (string, error) {
	if current != nil && username == current.Username {
		return current.Name, nil
	}

	return c.users.Resolve(ctx, username, func(ctx context.Context) (string, error) {
		found, err := repo.SearchUser(ctx, username)
		if err != nil {
			return "", fmt.Errorf("failed to search for user %q: %w", username, err)
		}
		if found == nil {
			return "", nil
		}

		return found.Name, nil
	})
}

// resolveTicket returns the project's ticket integration, memoized per
// project. A project without one resolves to the noop integration;
// lookup errors are returned to the caller and retried next time.
func (c *Client) resolveTicket(ctx context.Context, repo Repository, projectID int) (ticket.Integration, error) {
	return c.tickets.Resolve(ctx, projectID, func(ctx context.Context) (ticket.Integration, error) {
		cfg, err := repo.TicketIntegration(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to get ticket integration for project %d: %w", projectID, err)
		}
		if cfg == nil {
			return ticket.Noop{}, nil
		}

		jira, err := ticket.NewJira(cfg.URL, cfg.IssuePrefix, cfg.IssueRegex)
		if err != nil {
			return nil, fmt.Errorf("failed to build ticket integration for project %d: %w", projectID, err)
		}

		return jira, nil
	})
}
