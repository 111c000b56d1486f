package app

import (
	"context"
	"testing"
	"time"

	"github.com/canton7/gitlab-mr-viewer/internal/adapters/secondary/repository/mocks"
	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
	"github.com/canton7/gitlab-mr-viewer/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func note(id, authorID int, createdAt time.Time) domain.Note {
	return domain.Note{
		ID:         id,
		AuthorID:   authorID,
		AuthorName: "Author " + string(rune('A'+authorID)),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestCollapseNotesSingleBurst(t *testing.T) {
	mr := &domain.MergeRequest{Key: "1-1"}
	notes := []domain.Note{
		note(10, 1, base),
		note(11, 1, base.Add(time.Minute)),
		note(12, 1, base.Add(4*time.Minute)),
	}

	out := collapseNotes(notes, mr)

	require.Len(t, out, 1)
	assert.Equal(t, "synthesized-add-comments-10", out[0].Key)
	assert.Equal(t, "added 3 comment(s)", out[0].Body)
	assert.Equal(t, base, out[0].UpdatedAt)
	assert.Nil(t, out[0].NoteID)
	assert.Same(t, mr, out[0].MergeRequest)
}

func TestCollapseNotesGapStartsNewBurst(t *testing.T) {
	mr := &domain.MergeRequest{Key: "1-1"}
	notes := []domain.Note{
		note(10, 1, base),
		note(11, 1, base.Add(time.Minute)),
		note(12, 1, base.Add(4*time.Minute)),
		// Six minutes after the previous note: past the window.
		note(13, 1, base.Add(10*time.Minute)),
	}

	out := collapseNotes(notes, mr)

	require.Len(t, out, 2)
	assert.Equal(t, "added 3 comment(s)", out[0].Body)
	assert.Equal(t, base, out[0].UpdatedAt)
	assert.Equal(t, "added 1 comment(s)", out[1].Body)
	assert.Equal(t, "synthesized-add-comments-13", out[1].Key)
	assert.Equal(t, base.Add(10*time.Minute), out[1].UpdatedAt)
}

func TestCollapseNotesExactWindowStartsNewBurst(t *testing.T) {
	mr := &domain.MergeRequest{Key: "1-1"}
	notes := []domain.Note{
		note(10, 1, base),
		note(11, 1, base.Add(combineWindow)),
	}

	out := collapseNotes(notes, mr)

	require.Len(t, out, 2)
}

func TestCollapseNotesConcurrentAuthors(t *testing.T) {
	mr := &domain.MergeRequest{Key: "1-1"}
	notes := []domain.Note{
		note(10, 1, base),
		note(20, 2, base.Add(time.Minute)),
		note(11, 1, base.Add(2*time.Minute)),
		note(21, 2, base.Add(3*time.Minute)),
	}

	out := collapseNotes(notes, mr)

	require.Len(t, out, 2)
	counts := map[string]string{}
	for _, a := range out {
		counts[a.Key] = a.Body
	}
	assert.Equal(t, "added 2 comment(s)", counts["synthesized-add-comments-10"])
	assert.Equal(t, "added 2 comment(s)", counts["synthesized-add-comments-20"])
}

func TestCreateActivitiesIndividualSystemNotes(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}
	user := &domain.User{ID: 7, Username: "me", Name: "Me"}
	mr := &domain.MergeRequest{Key: "1-1"}

	systemNote := note(1, 2, base)
	systemNote.System = true
	systemNote.Body = "approved this merge request\nwith trailing detail"

	marker := note(2, 2, base.Add(time.Minute))
	marker.System = true
	marker.Body = reviewCommentsMarker

	human := note(3, 2, base.Add(2*time.Minute))
	human.Body = "looks good"

	discussions := []*domain.Discussion{
		{ID: "d1", IndividualNote: true, Notes: []domain.Note{systemNote}},
		{ID: "d2", IndividualNote: true, Notes: []domain.Note{marker}},
		{ID: "d3", IndividualNote: true, Notes: []domain.Note{human}},
		{ID: "d4", IndividualNote: true},
	}

	out, err := client.createActivities(context.Background(), repo, user, discussions, mr)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "d1", out[0].Key)
	assert.Equal(t, "approved this merge request", out[0].Body)
	require.NotNil(t, out[0].NoteID)
	assert.Equal(t, 1, *out[0].NoteID)
}

func TestCreateActivitiesPoolsThreadsAcrossDiscussions(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}
	user := &domain.User{ID: 7, Username: "me", Name: "Me"}
	mr := &domain.MergeRequest{Key: "1-1"}

	// Two threads, notes interleaved in time by the same author. The
	// pool is sorted by creation time before collapsing, so all four
	// fold into one burst keyed by the earliest note.
	discussions := []*domain.Discussion{
		{ID: "t1", Notes: []domain.Note{note(10, 1, base.Add(time.Minute)), note(12, 1, base.Add(3*time.Minute))}},
		{ID: "t2", Notes: []domain.Note{note(11, 1, base), note(13, 1, base.Add(2*time.Minute))}},
	}

	out, err := client.createActivities(context.Background(), repo, user, discussions, mr)
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, "synthesized-add-comments-11", out[0].Key)
	assert.Equal(t, "added 4 comment(s)", out[0].Body)
	assert.Equal(t, base, out[0].UpdatedAt)
}

func TestCreateActivitiesSortedAscending(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}
	user := &domain.User{ID: 7, Username: "me", Name: "Me"}
	mr := &domain.MergeRequest{Key: "1-1"}

	late := note(1, 2, base.Add(30*time.Minute))
	late.System = true
	late.Body = "approved this merge request"

	discussions := []*domain.Discussion{
		{ID: "d1", IndividualNote: true, Notes: []domain.Note{late}},
		{ID: "t1", Notes: []domain.Note{note(10, 1, base)}},
	}

	out, err := client.createActivities(context.Background(), repo, user, discussions, mr)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "synthesized-add-comments-10", out[0].Key)
	assert.Equal(t, "d1", out[1].Key)
}

func TestExpandMentions(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}
	user := &domain.User{ID: 7, Username: "me", Name: "Me Myself"}

	repo.On("SearchUser", mock.Anything, "jdoe").
		Return(&domain.User{ID: 8, Username: "jdoe", Name: "Jane Doe"}, nil).Once()
	repo.On("SearchUser", mock.Anything, "ghost").Return(nil, nil).Once()

	out, err := client.expandMentions(context.Background(), repo, user, "assigned to @jdoe and @me, cc @ghost")
	require.NoError(t, err)
	assert.Equal(t, "assigned to Jane Doe and Me Myself, cc @ghost", out)

	// Both the hit and the miss are remembered, so a second pass over
	// the same mentions issues no further searches.
	out, err = client.expandMentions(context.Background(), repo, user, "ping @jdoe @ghost")
	require.NoError(t, err)
	assert.Equal(t, "ping Jane Doe @ghost", out)

	repo.AssertExpectations(t)
}

func TestExpandMentionsIgnoresEmailAddresses(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}
	user := &domain.User{ID: 7, Username: "me", Name: "Me"}

	out, err := client.expandMentions(context.Background(), repo, user, "mail me at someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, "mail me at someone@example.com", out)

	repo.AssertNotCalled(t, "SearchUser", mock.Anything, mock.Anything)
}

func TestBuildMergeRequestCounters(t *testing.T) {
	raw := &domain.RawMergeRequest{ProjectID: 3, ID: 41, IID: 5, Title: "Add feature"}

	open1 := note(10, 1, base)
	open1.Resolvable = true
	resolved := note(11, 1, base)
	resolved.Resolvable = true
	resolved.Resolved = true
	open2 := note(12, 2, base)
	open2.Resolvable = true
	reply := note(13, 2, base)

	discussions := []*domain.Discussion{
		{ID: "a", Notes: []domain.Note{open1, reply}},
		{ID: "b", Notes: []domain.Note{resolved}},
		{ID: "c", Notes: []domain.Note{open2}},
		{ID: "d", Notes: []domain.Note{reply}},
		{ID: "e"},
	}

	mr := buildMergeRequest(raw, domain.RoleReviewer, true, discussions, nil, ticket.Noop{})

	assert.Equal(t, "3-41", mr.Key)
	assert.Equal(t, domain.RoleReviewer, mr.Role)
	assert.True(t, mr.IsApproved)
	assert.Equal(t, 2, mr.OpenDiscussions)
	assert.Equal(t, 3, mr.TotalDiscussions)
	require.NotNil(t, mr.FirstOpenNoteID)
	assert.Equal(t, 10, *mr.FirstOpenNoteID)
	assert.Equal(t, domain.CIStatusNone, mr.CIStatus)
}

func TestBuildMergeRequestCIStatus(t *testing.T) {
	raw := &domain.RawMergeRequest{ProjectID: 3, ID: 41}
	statuses := []*domain.CommitStatus{
		{Status: "running", TargetURL: "https://ci.example.com/1"},
		{Status: "success", TargetURL: "https://ci.example.com/0"},
	}

	mr := buildMergeRequest(raw, domain.RoleAssignee, false, nil, statuses, ticket.Noop{})

	assert.Equal(t, "running", mr.CIStatus)
	assert.Equal(t, "https://ci.example.com/1", mr.CILink)
	assert.Nil(t, mr.FirstOpenNoteID)
}

func TestResolveTicketNotConfigured(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}

	repo.On("TicketIntegration", mock.Anything, 3).Return(nil, nil).Once()

	integration, err := client.resolveTicket(context.Background(), repo, 3)
	require.NoError(t, err)
	assert.Equal(t, ticket.Noop{}, integration)

	// The "not configured" answer is cached per project.
	_, err = client.resolveTicket(context.Background(), repo, 3)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestResolveTicketConfigured(t *testing.T) {
	client := NewClient()
	repo := &mocks.MockRepository{}

	repo.On("TicketIntegration", mock.Anything, 3).
		Return(&domain.TicketConfig{URL: "https://jira.example.com"}, nil).Once()

	integration, err := client.resolveTicket(context.Background(), repo, 3)
	require.NoError(t, err)

	spans := ticket.Annotate("See ABC-123, it's broken.", integration)
	require.Len(t, spans, 3)
	assert.Equal(t, "https://jira.example.com/browse/ABC-123", spans[1].URL)
}
