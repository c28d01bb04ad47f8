package mocks

import (
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/Harvey-AU/site-report/internal/export"
)

// MockRenderer is a mock document renderer
type MockRenderer struct {
	mock.Mock
}

// Render mocks the Render method. When no error is configured it writes a
// minimal PDF header so callers see a non-empty document.
func (m *MockRenderer) Render(doc export.Document, w io.Writer) error {
	args := m.Called(doc, w)
	if err := args.Error(0); err != nil {
		return err
	}
	_, err := io.WriteString(w, "%PDF-1.7\n")
	return err
}
