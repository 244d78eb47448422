package factory

import (
	"time"

	"github.com/mcoot/wolfbot/internal/dependencies/mocks"
	"github.com/mcoot/wolfbot/internal/directory/memory"
	storagememory "github.com/mcoot/wolfbot/internal/storage/memory"
	"github.com/mcoot/wolfbot/internal/testutil"
)

// TestSecret signs tokens in test apps
const TestSecret = "test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDs
	MemoryDir *memory.Directory
}

// NewTestApp creates an App with in-memory storage and directory, mocked
// time and ids, and no write pacing
func NewTestApp() *TestApp {
	store := storagememory.New()
	dir := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	mockIDs := mocks.NewMockIDs()

	cfg := withDefaults(Config{})
	cfg.Auth.Secret = TestSecret
	app := newWithDependencies(store, dir, mockClock, mockIDs, 0, cfg, testutil.NopLogger())

	return &TestApp{
		App:       app,
		MockClock: mockClock,
		MockIDs:   mockIDs,
		MemoryDir: dir,
	}
}
