package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/wmlbridge/internal/testutil"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestJournal opens a journal in a temp dir whose clock starts at
// epoch and advances one second per call.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	j, err := Open(path, WithClock(testutil.NewDeterministicClock(epoch, time.Second)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}
