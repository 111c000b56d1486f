package domain

import (
	"time"

	"github.com/canton7/gitlab-mr-viewer/internal/ticket"
)

// Role describes the relationship between the current user and a merge
// request. The same merge request may be visible under both roles.
type Role string

const (
	RoleAssignee Role = "assignee"
	RoleReviewer Role = "reviewer"
)

type User struct {
	ID       int
	Username string
	Name     string
}

// RawMergeRequest is one entry of a role-scoped merge request listing,
// before approvals, discussions and CI status have been fetched.
type RawMergeRequest struct {
	ID           int
	IID          int
	ProjectID    int
	Title        string
	WebURL       string
	SHA          string
	Reference    string
	AuthorName   string
	AssigneeName string
	ReviewerName string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MergeRequest is the fully assembled view of one open review item.
// Instances are built fresh on every poll cycle and never mutated;
// the next cycle supersedes them wholesale.
type MergeRequest struct {
	// Key is the stable identity: "<projectID>-<mergeRequestID>".
	// Merge request IIDs are only unique within a project.
	Key              string
	Role             Role
	Title            string
	WebURL           string
	Reference        string
	AuthorName       string
	AssigneeName     string
	ReviewerName     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	IsApproved       bool
	FirstOpenNoteID  *int
	OpenDiscussions  int
	TotalDiscussions int
	CIStatus         string
	CILink           string
	Ticket           ticket.Integration
}

// Activity is one synthesized feed entry. NoteID is nil for purely
// synthesized multi-comment summaries.
type Activity struct {
	Key          string
	Body         string
	UpdatedAt    time.Time
	NoteID       *int
	AuthorName   string
	MergeRequest *MergeRequest
}

// Discussion is one raw review thread as returned by the platform.
// IndividualNote discussions hold exactly one, often system-generated,
// note.
type Discussion struct {
	ID             string
	IndividualNote bool
	Notes          []Note
}

// Note is one comment or event within a discussion.
type Note struct {
	ID             int
	Body           string
	AuthorID       int
	AuthorName     string
	AuthorUsername string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	System         bool
	Resolvable     bool
	Resolved       bool
}

// CommitStatus is one CI status attached to a commit.
type CommitStatus struct {
	Status    string
	TargetURL string
}

// CIStatusNone is reported when a merge request's head commit has no
// CI statuses at all.
const CIStatusNone = "none"

// TicketConfig is the raw per-project tracker configuration as
// returned by the platform, before the matcher has been compiled.
type TicketConfig struct {
	URL         string
	IssuePrefix string
	IssueRegex  string
}

// StateKind tags the client state variant.
type StateKind int

const (
	StateUnconfigured StateKind = iota
	StateLoading
	StateLoaded
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateUnconfigured:
		return "unconfigured"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	}

	return "unknown"
}

// ClientState is the poll client's state machine tag. Err is set only
// when Kind is StateError.
type ClientState struct {
	Kind StateKind
	Err  error
}
