package factory

import (
	"time"

	"github.com/mcoot/coursebattle/internal/dependencies/mocks"
	"github.com/mcoot/coursebattle/internal/services/auth"
	"github.com/mcoot/coursebattle/internal/storage/memory"
	"github.com/mcoot/coursebattle/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	MemoryFeed *memory.Feed
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	logger := testutil.NopLogger()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	feed := memory.NewFeed(logger)

	app := newWithDependencies(memory.New(), feed, mockClock, mockRandom, auth.DefaultConfig(), logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		MemoryFeed: feed,
	}
}
