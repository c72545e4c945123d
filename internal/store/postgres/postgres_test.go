package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/vovakirdan/teamchat-server/internal/store"
	"github.com/vovakirdan/teamchat-server/internal/store/storetest"
)

const envTestDatabaseURL = "TEAMCHAT_TEST_DATABASE_URL"

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	url := os.Getenv(envTestDatabaseURL)
	if url == "" {
		t.Skipf("%s not set", envTestDatabaseURL)
	}

	ctx := context.Background()
	s, err := New(ctx, url, Options{MaxConns: 4, AutoSchema: true})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE messages, room_members, rooms, project_members, projects, users RESTART IDENTITY`); err != nil {
		s.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}
