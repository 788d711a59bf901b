package testsupport

import (
	"testing"
	"time"

	"orchestra/internal/config"
	"orchestra/internal/queue"
)

// FixedTime is the clock used by stores opened with MustOpenStore.
var FixedTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// MustOpenStore opens a queue.Store over cfg's directories with a fixed clock.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(queue.DirsFromConfig(cfg), queue.WithClock(func() time.Time { return FixedTime }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
