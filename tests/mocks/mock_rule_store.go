package mocks

import (
	"context"
	"time"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockRuleStore struct {
	mock.Mock
}

func (m *MockRuleStore) ListIPRules(ctx context.Context, linkID int64, userID *int64) ([]domain.IPRule, error) {
	args := m.Called(ctx, linkID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.IPRule), args.Error(1)
}

func (m *MockRuleStore) ListGeoRestrictions(ctx context.Context, linkID int64) ([]domain.GeoRestriction, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.GeoRestriction), args.Error(1)
}

func (m *MockRuleStore) ListRateLimitRules(ctx context.Context, linkID int64, userID *int64) ([]domain.RateLimitRule, error) {
	args := m.Called(ctx, linkID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RateLimitRule), args.Error(1)
}

func (m *MockRuleStore) ListRedirectRules(ctx context.Context, linkID int64) ([]domain.RedirectRule, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RedirectRule), args.Error(1)
}

type MockRateLimitStore struct {
	mock.Mock
}

func (m *MockRateLimitStore) GetOrCreate(ctx context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error) {
	args := m.Called(ctx, ruleID, ip, window)
	return args.Get(0).(domain.RateLimitState), args.Error(1)
}

func (m *MockRateLimitStore) RecordHit(ctx context.Context, ruleID int64, ip string, window time.Duration) (domain.RateLimitState, error) {
	args := m.Called(ctx, ruleID, ip, window)
	return args.Get(0).(domain.RateLimitState), args.Error(1)
}

func (m *MockRateLimitStore) Block(ctx context.Context, ruleID int64, ip string, until time.Time) error {
	args := m.Called(ctx, ruleID, ip, until)
	return args.Error(0)
}
