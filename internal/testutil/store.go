// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	"github.com/smokyabdulrahman/prayer-notify/internal/store"
)

// NewTestStore creates an in-memory SQL store with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLStore("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}
