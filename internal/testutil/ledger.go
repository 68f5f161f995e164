package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/refinery/internal/store"
)

// TempLedger opens a ledger in a per-test temporary directory and closes
// it when the test finishes.
func TempLedger(t *testing.T) *store.Ledger {
	t.Helper()
	ledger, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() {
		if err := ledger.Close(); err != nil {
			t.Errorf("close ledger: %v", err)
		}
	})
	return ledger
}
