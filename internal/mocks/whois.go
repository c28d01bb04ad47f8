package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Harvey-AU/site-report/internal/report"
)

// MockRawWhois is a mock raw WHOIS lookup
type MockRawWhois struct {
	mock.Mock
}

// Lookup mocks the Lookup method
func (m *MockRawWhois) Lookup(ctx context.Context, domain string) (string, error) {
	args := m.Called(ctx, domain)
	return args.String(0), args.Error(1)
}

// MockStructuredWhois is a mock structured WHOIS lookup
type MockStructuredWhois struct {
	mock.Mock
}

// Lookup mocks the Lookup method
func (m *MockStructuredWhois) Lookup(ctx context.Context, domain string) (report.WhoisRecord, error) {
	args := m.Called(ctx, domain)
	return args.Get(0).(report.WhoisRecord), args.Error(1)
}
