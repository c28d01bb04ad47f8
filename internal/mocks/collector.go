package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Harvey-AU/site-report/internal/report"
)

// MockCollector is a mock facet collector
type MockCollector[T any] struct {
	mock.Mock
}

// Collect mocks the Collect method
func (m *MockCollector[T]) Collect(ctx context.Context, target report.Target) (T, error) {
	args := m.Called(ctx, target)
	var zero T
	if v := args.Get(0); v != nil {
		zero = v.(T)
	}
	return zero, args.Error(1)
}
