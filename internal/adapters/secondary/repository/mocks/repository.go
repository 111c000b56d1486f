// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/canton7/gitlab-mr-viewer/internal/core/domain"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a mock implementation of app.Repository.
type MockRepository struct {
	mock.Mock
}

// CurrentUser mocks the CurrentUser method.
func (m *MockRepository) CurrentUser(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.User), args.Error(1)
}

// ListMergeRequests mocks the ListMergeRequests method.
func (m *MockRepository) ListMergeRequests(
	ctx context.Context,
	role domain.Role,
	userID int,
) ([]*domain.RawMergeRequest, error) {
	args := m.Called(ctx, role, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.RawMergeRequest), args.Error(1)
}

// IsApproved mocks the IsApproved method.
func (m *MockRepository) IsApproved(ctx context.Context, projectID, mrIID int) (bool, error) {
	args := m.Called(ctx, projectID, mrIID)

	return args.Bool(0), args.Error(1)
}

// ListDiscussions mocks the ListDiscussions method.
func (m *MockRepository) ListDiscussions(ctx context.Context, projectID, mrIID int) ([]*domain.Discussion, error) {
	args := m.Called(ctx, projectID, mrIID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.Discussion), args.Error(1)
}

// ListCommitStatuses mocks the ListCommitStatuses method.
func (m *MockRepository) ListCommitStatuses(
	ctx context.Context,
	projectID int,
	sha string,
) ([]*domain.CommitStatus, error) {
	args := m.Called(ctx, projectID, sha)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*domain.CommitStatus), args.Error(1)
}

// SearchUser mocks the SearchUser method.
func (m *MockRepository) SearchUser(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.User), args.Error(1)
}

// TicketIntegration mocks the TicketIntegration method.
func (m *MockRepository) TicketIntegration(ctx context.Context, projectID int) (*domain.TicketConfig, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*domain.TicketConfig), args.Error(1)
}
