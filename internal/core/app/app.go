// Package app owns the merge request poll client: the state machine
// driving periodic refreshes, the per-merge-request fan-out, and the
// synthesis of the activity feed from raw discussion data.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
	"github.com/canton7/gitlab-mr-viewer/internal/lazy"
	"github.com/canton7/gitlab-mr-viewer/internal/ticket"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is the refresh cadence used when the settings do
// not specify one.
const DefaultPollInterval = time.Minute

// Repository defines the read operations the client needs from the
// review platform (port). Implementations issue no writes.
//
// ListDiscussions must return discussions ordered descending by update
// time: the choice of "first open note" depends on it.
type Repository interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
	ListMergeRequests(ctx context.Context, role domain.Role, userID int) ([]*domain.RawMergeRequest, error)
	IsApproved(ctx context.Context, projectID, mrIID int) (bool, error)
	ListDiscussions(ctx context.Context, projectID, mrIID int) ([]*domain.Discussion, error)
	ListCommitStatuses(ctx context.Context, projectID int, sha string) ([]*domain.CommitStatus, error)
	SearchUser(ctx context.Context, username string) (*domain.User, error)
	TicketIntegration(ctx context.Context, projectID int) (*domain.TicketConfig, error)
}

// Client polls the review platform and publishes the assigned and
// reviewing merge request lists plus the synthesized activity feed.
// All published values are snapshots: rebuilt each poll, never mutated.
type Client struct {
	mu         sync.Mutex
	repo       Repository
	generation int
	user       *domain.User
	state      domain.ClientState
	assigned   []*domain.MergeRequest
	reviewing  []*domain.MergeRequest
	activities []*domain.Activity
	refreshing bool
	queued     bool
	interval   time.Duration
	stopTimer  func()
	onUpdate   func()

	users   *lazy.Map[string, string]
	tickets *lazy.Map[int, ticket.Integration]
}

func NewClient() *Client {
	return &Client{
		state:   domain.ClientState{Kind: domain.StateUnconfigured},
		users:   lazy.NewMap[string, string](),
		tickets: lazy.NewMap[int, ticket.Integration](),
	}
}

// SetOnUpdate registers a callback invoked after every state or data
// change. Called from the client's own goroutines; keep it cheap.
func (c *Client) SetOnUpdate(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onUpdate = fn
}

// SetRepository installs a new upstream connection, or removes it when
// repo is nil (credentials cleared). Either way the resolver caches
// and published data are cleared and the current user is re-resolved
// on the next refresh.
func (c *Client) SetRepository(repo Repository) {
	c.mu.Lock()
	c.repo = repo
	c.generation++
	c.user = nil
	c.assigned = nil
	c.reviewing = nil
	c.activities = nil
	c.users.Reset()
	c.tickets.Reset()
	if repo == nil {
		c.state = domain.ClientState{Kind: domain.StateUnconfigured}
	} else {
		c.state = domain.ClientState{Kind: domain.StateLoading}
	}
	armed := c.stopTimer != nil && repo != nil
	// A swap should feel instant even when a cycle for the old session
	// is still in flight: queue one follow-up refresh instead of
	// silently waiting for the next tick. Timer ticks themselves are
	// still skipped, never queued.
	c.queued = false
	queue := armed && c.refreshing
	if queue {
		c.queued = true
	}
	c.mu.Unlock()

	c.notify()

	if armed && !queue {
		go func() { _ = c.RefreshOnce(context.Background()) }()
	}
}

// State returns the current state machine tag.
func (c *Client) State() domain.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Assigned returns the merge requests where the user is the assignee.
func (c *Client) Assigned() []*domain.MergeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*domain.MergeRequest(nil), c.assigned...)
}

// Reviewing returns the merge requests where the user is a reviewer.
func (c *Client) Reviewing() []*domain.MergeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*domain.MergeRequest(nil), c.reviewing...)
}

// Activities returns the deduplicated feed, newest first.
func (c *Client) Activities() []*domain.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*domain.Activity(nil), c.activities...)
}

// Start arms the poll timer and refreshes immediately. Restarting with
// a different interval also refreshes immediately, so switching to a
// shorter cadence never waits out the remainder of the old period.
func (c *Client) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c.Stop()

	done := make(chan struct{})
	var once sync.Once

	c.mu.Lock()
	c.interval = interval
	c.stopTimer = func() { once.Do(func() { close(done) }) }
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = c.RefreshOnce(context.Background())
			}
		}
	}()

	go func() { _ = c.RefreshOnce(context.Background()) }()
}

// Stop disarms the poll timer. A refresh already in flight completes
// and publishes its result.
func (c *Client) Stop() {
	c.mu.Lock()
	stop := c.stopTimer
	c.stopTimer = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Refresh performs a manual refresh. It is accepted only from the
// loaded and error states; while a poll is already in flight the
// request is dropped rather than overlapped.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	kind := c.state.Kind
	c.mu.Unlock()

	if kind != domain.StateLoaded && kind != domain.StateError {
		return nil
	}

	return c.RefreshOnce(ctx)
}

// RefreshOnce runs one full poll cycle and publishes the result. If a
// cycle is already running it returns immediately; two refreshes never
// interleave their writes to the published state.
func (c *Client) RefreshOnce(ctx context.Context) error {
	c.mu.Lock()
	if c.repo == nil || c.refreshing {
		c.mu.Unlock()

		return nil
	}
	repo := c.repo
	generation := c.generation
	c.refreshing = true
	c.state = domain.ClientState{Kind: domain.StateLoading}
	c.mu.Unlock()

	c.notify()

	assigned, reviewing, activities, err := c.load(ctx, repo)

	c.mu.Lock()
	c.refreshing = false
	queued := c.queued
	c.queued = false
	if generation != c.generation {
		// Credentials changed while this cycle was in flight; its
		// results describe a session that no longer exists.
		c.mu.Unlock()

		c.runQueued(queued)

		return err
	}
	if err != nil {
		// Previous data is retained: stale-but-present beats blanking
		// the view on a transient failure.
		c.state = domain.ClientState{Kind: domain.StateError, Err: err}
	} else {
		c.assigned = assigned
		c.reviewing = reviewing
		c.activities = activities
		c.state = domain.ClientState{Kind: domain.StateLoaded}
	}
	c.mu.Unlock()

	c.notify()
	c.runQueued(queued)

	return err
}

func (c *Client) runQueued(queued bool) {
	if queued {
		go func() { _ = c.RefreshOnce(context.Background()) }()
	}
}

func (c *Client) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Client) load(
	ctx context.Context,
	repo Repository,
) ([]*domain.MergeRequest, []*domain.MergeRequest, []*domain.Activity, error) {
	user, err := c.currentUser(ctx, repo)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get current user: %w", err)
	}

	var (
		reviewing, assigned         []*domain.MergeRequest
		reviewingActs, assignedActs []*domain.Activity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reviewing, reviewingActs, err = c.loadRole(gctx, repo, user, domain.RoleReviewer)

		return err
	})
	g.Go(func() error {
		var err error
		assigned, assignedActs, err = c.loadRole(gctx, repo, user, domain.RoleAssignee)

		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	return assigned, reviewing, mergeActivities(reviewingActs, assignedActs), nil
}

func (c *Client) loadRole(
	ctx context.Context,
	repo Repository,
	user *domain.User,
	role domain.Role,
) ([]*domain.MergeRequest, []*domain.Activity, error) {
	raws, err := repo.ListMergeRequests(ctx, role, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s merge requests: %w", role, err)
	}

	mrs := make([]*domain.MergeRequest, len(raws))
	acts := make([][]*domain.Activity, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range raws {
		g.Go(func() error {
			mr, activities, err := c.assembleMergeRequest(gctx, repo, user, raw, role)
			if err != nil {
				return err
			}
			mrs[i] = mr
			acts[i] = activities

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var flat []*domain.Activity
	for _, a := range acts {
		flat = append(flat, a...)
	}

	return mrs, flat, nil
}

func (c *Client) currentUser(ctx context.Context, repo Repository) (*domain.User, error) {
	c.mu.Lock()
	user := c.user
	generation := c.generation
	c.mu.Unlock()
	if user != nil {
		return user, nil
	}

	user, err := repo.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// A credential swap while the lookup was in flight means this user
	// belongs to the old session; the new one re-resolves from scratch.
	if generation == c.generation {
		c.user = user
	}
	c.mu.Unlock()

	return user, nil
}

// mergeActivities combines both role branches, deduplicating by key:
// a merge request visible under both roles produces identical
// activities twice, and the later insertion wins. The result is sorted
// newest first.
func mergeActivities(branches ...[]*domain.Activity) []*domain.Activity {
	byKey := make(map[string]*domain.Activity)
	for _, branch := range branches {
		for _, activity := range branch {
			byKey[activity.Key] = activity
		}
	}

	merged := make([]*domain.Activity, 0, len(byKey))
	for _, activity := range byKey {
		merged = append(merged, activity)
	}

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].UpdatedAt.Equal(merged[j].UpdatedAt) {
			return merged[i].UpdatedAt.After(merged[j].UpdatedAt)
		}

		return merged[i].Key < merged[j].Key
	})

	return merged
}
