package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Harvey-AU/site-report/internal/report"
)

// MockResolver is a mock DNS resolver
type MockResolver struct {
	mock.Mock
}

// Lookup mocks the Lookup method
func (m *MockResolver) Lookup(ctx context.Context, name string, rt report.RecordType) ([]string, error) {
	args := m.Called(ctx, name, rt)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}
