package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/model"
)

// --- Acquirer Mock ---

type mockAcquirer struct {
	mock.Mock
}

func (m *mockAcquirer) Acquire(ctx context.Context, pageURL string) (model.Document, error) {
	args := m.Called(ctx, pageURL)
	return args.Get(0).(model.Document), args.Error(1)
}

// --- Merger Mock ---

type mockMerger struct {
	mock.Mock
}

func (m *mockMerger) Merge(ctx context.Context, batch []model.SurveillanceRecord) (history.Summary, error) {
	args := m.Called(ctx, batch)
	return args.Get(0).(history.Summary), args.Error(1)
}

// --- Discoverer stub ---

type staticDiscoverer struct {
	links []string
	err   error
}

func (s staticDiscoverer) Name() string { return "static" }

func (s staticDiscoverer) Discover(context.Context) ([]string, error) {
	return s.links, s.err
}
