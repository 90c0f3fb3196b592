package mocks

import (
	"context"
	"io"

	"github.com/devhappys/kutt-sub000/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, address, domainName string, req domain.RequestContext) (*domain.Outcome, error) {
	args := m.Called(ctx, address, domainName, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Outcome), args.Error(1)
}

func (m *MockResolver) ResolveWithPassword(ctx context.Context, address, domainName string, req domain.RequestContext, password string) (*domain.Outcome, error) {
	args := m.Called(ctx, address, domainName, req, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Outcome), args.Error(1)
}

type MockAnalyticsService struct {
	mock.Mock
}

func (m *MockAnalyticsService) Get(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LinkStats), args.Error(1)
}

func (m *MockAnalyticsService) Visits(ctx context.Context, linkID int64, filter domain.VisitFilter, page domain.Pagination) (*domain.VisitPage, error) {
	args := m.Called(ctx, linkID, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VisitPage), args.Error(1)
}

// Export writes the string given as the second return value before returning
// the error.
func (m *MockAnalyticsService) Export(ctx context.Context, w io.Writer, linkID int64, filter domain.VisitFilter, format string) error {
	args := m.Called(ctx, w, linkID, filter, format)
	if body, ok := args.Get(1).(string); ok && body != "" {
		if _, err := io.WriteString(w, body); err != nil {
			return err
		}
	}
	return args.Error(0)
}

func (m *MockAnalyticsService) Heatmap(ctx context.Context, linkID int64, days int) (*domain.Heatmap, error) {
	args := m.Called(ctx, linkID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Heatmap), args.Error(1)
}

func (m *MockAnalyticsService) UTM(ctx context.Context, linkID int64) (*domain.UTMBreakdown, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UTMBreakdown), args.Error(1)
}

func (m *MockAnalyticsService) Devices(ctx context.Context, linkID int64) (*domain.DeviceBreakdown, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeviceBreakdown), args.Error(1)
}

func (m *MockAnalyticsService) ActiveVisitors(ctx context.Context, linkID int64, minutes int) (*domain.ActiveVisitors, error) {
	args := m.Called(ctx, linkID, minutes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActiveVisitors), args.Error(1)
}

func (m *MockAnalyticsService) Funnel(ctx context.Context, linkIDs []int64) (*domain.Funnel, error) {
	args := m.Called(ctx, linkIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Funnel), args.Error(1)
}

func (m *MockAnalyticsService) Compare(ctx context.Context, linkIDs []int64) (*domain.Comparison, error) {
	args := m.Called(ctx, linkIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Comparison), args.Error(1)
}
