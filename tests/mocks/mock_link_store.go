package mocks

import (
	"context"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) Find(ctx context.Context, address, domainName string) (*domain.Link, error) {
	args := m.Called(ctx, address, domainName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockLinkStore) Update(ctx context.Context, linkID int64, update domain.LinkUpdate) (*domain.Link, error) {
	args := m.Called(ctx, linkID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

func (m *MockLinkStore) IncrementVisit(ctx context.Context, linkID int64) error {
	args := m.Called(ctx, linkID)
	return args.Error(0)
}
