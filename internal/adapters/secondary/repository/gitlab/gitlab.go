// Package gitlab implements app.Repository against the GitLab REST API.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	glhttp "github.com/canton7/gitlab-mr-viewer/internal/adapters/secondary/gitlab"
	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const (
	perPageLimit = 100

	// Discussion pages are fetched newest first with keyset pagination,
	// matching the order the discussion counters rely on.
	discussionPerPage = 50
	discussionOrderBy = "updated_at"
	discussionSort    = "desc"
)

// Repository implements the app.Repository interface for GitLab.
type Repository struct {
	client *gitlab.Client
}

// NewRepository creates a new GitLab repository instance.
func NewRepository(client *gitlab.Client) *Repository {
	return &Repository{client: client}
}

// CurrentUser returns the user the access token belongs to.
func (r *Repository) CurrentUser(ctx context.Context) (*domain.User, error) {
	user, _, err := r.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return &domain.User{
		ID:       user.ID,
		Username: user.Username,
		Name:     user.Name,
	}, nil
}

// ListMergeRequests lists the open merge requests where the user holds
// the given role, most recently updated first.
func (r *Repository) ListMergeRequests(
	ctx context.Context,
	role domain.Role,
	userID int,
) ([]*domain.RawMergeRequest, error) {
	opts := &gitlab.ListMergeRequestsOptions{
		ListOptions: gitlab.ListOptions{
			PerPage: perPageLimit,
		},
		State:   gitlab.Ptr("opened"),
		Scope:   gitlab.Ptr("all"),
		OrderBy: gitlab.Ptr("updated_at"),
	}
	switch role {
	case domain.RoleReviewer:
		opts.ReviewerID = gitlab.ReviewerID(userID)
	case domain.RoleAssignee:
		opts.AssigneeID = gitlab.AssigneeID(userID)
	}

	var raws []*domain.RawMergeRequest
	for {
		mrs, resp, err := r.client.MergeRequests.ListMergeRequests(opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list merge requests: %w", err)
		}

		for _, mr := range mrs {
			raws = append(raws, convertMergeRequest(mr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return raws, nil
}

// IsApproved reports whether at least one user has approved the merge
// request.
func (r *Repository) IsApproved(ctx context.Context, projectID, mrIID int) (bool, error) {
	approvals, _, err := r.client.MergeRequests.GetMergeRequestApprovals(projectID, mrIID, gitlab.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to get merge request approvals: %w", err)
	}

	return len(approvals.ApprovedBy) > 0, nil
}

// ListDiscussions returns every discussion of a merge request, newest
// first, following keyset pagination until the last page.
func (r *Repository) ListDiscussions(ctx context.Context, projectID, mrIID int) ([]*domain.Discussion, error) {
	opts := &gitlab.ListMergeRequestDiscussionsOptions{
		PerPage:    discussionPerPage,
		OrderBy:    discussionOrderBy,
		Sort:       discussionSort,
		Pagination: "keyset",
	}

	var discussions []*domain.Discussion
	options := []gitlab.RequestOptionFunc{gitlab.WithContext(ctx)}
	for {
		page, resp, err := r.client.Discussions.ListMergeRequestDiscussions(projectID, mrIID, opts, options...)
		if err != nil {
			return nil, fmt.Errorf("failed to list merge request discussions: %w", err)
		}

		for _, d := range page {
			discussions = append(discussions, convertDiscussion(d))
		}

		if resp.NextLink == "" {
			break
		}
		options = []gitlab.RequestOptionFunc{
			gitlab.WithContext(ctx),
			gitlab.WithKeysetPaginationParameters(resp.NextLink),
		}
	}

	return discussions, nil
}

// ListCommitStatuses returns the CI statuses of a commit, most recent
// first.
func (r *Repository) ListCommitStatuses(
	ctx context.Context,
	projectID int,
	sha string,
) ([]*domain.CommitStatus, error) {
	statuses, _, err := r.client.Commits.GetCommitStatuses(
		projectID,
		sha,
		&gitlab.GetCommitStatusesOptions{},
		gitlab.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit statuses: %w", err)
	}

	out := make([]*domain.CommitStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, &domain.CommitStatus{
			Status:    status.Status,
			TargetURL: status.TargetURL,
		})
	}

	return out, nil
}

// SearchUser looks up a user by exact username. A missing user is not
// an error: the result is simply nil.
func (r *Repository) SearchUser(ctx context.Context, username string) (*domain.User, error) {
	users, _, err := r.client.Users.ListUsers(&gitlab.ListUsersOptions{
		Username: gitlab.Ptr(username),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	for _, user := range users {
		if user.Username == username {
			return &domain.User{
				ID:       user.ID,
				Username: user.Username,
				Name:     user.Name,
			}, nil
		}
	}

	return nil, nil
}

// TicketIntegration fetches the project's Jira configuration. A
// project without one (the integration endpoint answers 404, or the
// integration is inactive) yields nil without error.
func (r *Repository) TicketIntegration(ctx context.Context, projectID int) (*domain.TicketConfig, error) {
	service, _, err := r.client.Services.GetJiraService(projectID, gitlab.WithContext(ctx))
	if err != nil {
		var failed *glhttp.RequestFailedError
		if errors.As(err, &failed) && failed.Status == http.StatusNotFound {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get jira service: %w", err)
	}

	if !service.Active || service.Properties == nil || service.Properties.URL == "" {
		return nil, nil
	}

	return &domain.TicketConfig{
		URL:         strings.TrimSuffix(service.Properties.URL, "/"),
		IssuePrefix: service.Properties.JiraIssuePrefix,
		IssueRegex:  service.Properties.JiraIssueRegex,
	}, nil
}

func convertMergeRequest(mr *gitlab.BasicMergeRequest) *domain.RawMergeRequest {
	raw := &domain.RawMergeRequest{
		ID:        mr.ID,
		IID:       mr.IID,
		ProjectID: mr.ProjectID,
		Title:     mr.Title,
		WebURL:    mr.WebURL,
		SHA:       mr.SHA,
		CreatedAt: derefTime(mr.CreatedAt),
		UpdatedAt: derefTime(mr.UpdatedAt),
	}

	if mr.References != nil {
		// "group/project!1" reads better without the group part.
		full := mr.References.Full
		if i := strings.LastIndex(full, "/"); i >= 0 {
			full = full[i+1:]
		}
		raw.Reference = full
	}

	if mr.Author != nil {
		raw.AuthorName = mr.Author.Name
	}
	if mr.Assignee != nil {
		raw.AssigneeName = mr.Assignee.Name
	}
	if len(mr.Reviewers) > 0 {
		raw.ReviewerName = mr.Reviewers[0].Name
	}

	return raw
}

func convertDiscussion(d *gitlab.Discussion) *domain.Discussion {
	discussion := &domain.Discussion{
		ID:             d.ID,
		IndividualNote: d.IndividualNote,
		Notes:          make([]domain.Note, 0, len(d.Notes)),
	}

	for _, n := range d.Notes {
		discussion.Notes = append(discussion.Notes, domain.Note{
			ID:             n.ID,
			Body:           n.Body,
			AuthorID:       n.Author.ID,
			AuthorName:     n.Author.Name,
			AuthorUsername: n.Author.Username,
			CreatedAt:      derefTime(n.CreatedAt),
			UpdatedAt:      derefTime(n.UpdatedAt),
			System:         n.System,
			Resolvable:     n.Resolvable,
			Resolved:       n.Resolved,
		})
	}

	return discussion
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}

	return *t
}
