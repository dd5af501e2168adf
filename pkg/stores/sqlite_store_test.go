package stores

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/animkit/animkit/pkg/commandqueue"
	"github.com/animkit/animkit/pkg/protocol"
)

var _ commandqueue.Recorder = (*Journal)(nil)

// setupTestStore creates a migrated store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "journal.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func createSession(t *testing.T, store *SQLiteStore, id string, started time.Time) *Session {
	t.Helper()
	session := &Session{ID: id, WorkerID: "worker-1", Device: "headless", StartedAt: started}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return session
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate in-memory store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestSessionCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	createSession(t, store, "s1", started)

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.WorkerID != "worker-1" || got.Device != "headless" {
		t.Errorf("unexpected session: %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if got.EndedAt != nil {
		t.Errorf("expected an open session, got ended_at %v", got.EndedAt)
	}
	if got.Metadata != "{}" {
		t.Errorf("metadata = %q, want {}", got.Metadata)
	}

	if err := store.EndSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}
	got, err = store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if got.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}
	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := store.EndSession(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound ending a missing session, got %v", err)
	}
}

func TestListAndPruneSessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now()
	createSession(t, store, "old", now.Add(-48*time.Hour))
	createSession(t, store, "mid", now.Add(-time.Hour))
	createSession(t, store, "new", now)

	sessions, err := store.ListSessions(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "new" || sessions[2].ID != "old" {
		t.Errorf("expected newest first, got %s..%s", sessions[0].ID, sessions[2].ID)
	}

	page, err := store.ListSessions(ctx, 1, 1)
	if err != nil {
		t.Fatalf("failed to list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "mid" {
		t.Errorf("unexpected page: %+v", page)
	}

	pruned, err := store.PruneSessions(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d sessions, want 1", pruned)
	}
}

func TestEntriesAndSummary(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	createSession(t, store, "s1", time.Now())

	id := uint64(7)
	entries := []*Entry{
		{SessionID: "s1", Seq: 1, Direction: DirectionCommand, Type: "image.decode", RequestID: 7, Handle: 3, DataSize: 4, Payload: "{}", RecordedAt: time.Now()},
		{SessionID: "s1", Seq: 2, Direction: DirectionCommand, Type: "file.load", RequestID: 8, Handle: 4, Payload: "{}", RecordedAt: time.Now()},
		{SessionID: "s1", Seq: 3, Direction: DirectionCallback, Type: "image.error", RequestID: 7, Handle: 3, Payload: "{}", RecordedAt: time.Now()},
		{SessionID: "s1", Seq: 4, Direction: DirectionCallback, Type: "file.loaded", RequestID: 8, Handle: 4, Payload: "{}", RecordedAt: time.Now()},
	}
	if err := store.AppendEntries(ctx, entries); err != nil {
		t.Fatalf("failed to append entries: %v", err)
	}
	for _, e := range entries {
		if e.ID == 0 {
			t.Errorf("entry %d has no ID", e.Seq)
		}
	}

	all, err := store.ListEntries(ctx, "s1", EntryFilter{}, 0, 0)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
	for i, e := range all {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
	}

	byRequest, err := store.ListEntries(ctx, "s1", EntryFilter{RequestID: &id}, 100, 0)
	if err != nil {
		t.Fatalf("failed to filter entries: %v", err)
	}
	if len(byRequest) != 2 || byRequest[1].Type != "image.error" {
		t.Errorf("unexpected entries for request 7: %+v", byRequest)
	}

	callbacks := DirectionCallback
	onlyCallbacks, err := store.ListEntries(ctx, "s1", EntryFilter{Direction: &callbacks}, 100, 0)
	if err != nil {
		t.Fatalf("failed to filter by direction: %v", err)
	}
	if len(onlyCallbacks) != 2 {
		t.Errorf("expected 2 callbacks, got %d", len(onlyCallbacks))
	}

	summary, err := store.SummarizeSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to summarize: %v", err)
	}
	if summary.Commands != 2 || summary.Callbacks != 2 || summary.Errors != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("failed to delete session: %v", err)
	}
	left, err := store.ListEntries(ctx, "s1", EntryFilter{}, 100, 0)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expected entries to cascade, %d left", len(left))
	}
}

func TestJournalRecordsTraffic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	j, err := NewJournal(ctx, store, &Session{ID: "s1", WorkerID: "w", Device: "headless"})
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}

	j.RecordCommand(&protocol.Command{Type: protocol.CommandDecodeImage, RequestID: 1, Handle: 9, Data: []byte{1, 2, 3}})
	j.RecordCallback(&protocol.Callback{Type: protocol.CallbackImageDecoded, RequestID: 1, Handle: 9})

	if err := j.Close(ctx); err != nil {
		t.Fatalf("failed to close journal: %v", err)
	}
	if err := j.Close(ctx); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	entries, err := store.ListEntries(ctx, "s1", EntryFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	cmd := entries[0]
	if cmd.Direction != DirectionCommand || cmd.Type != string(protocol.CommandDecodeImage) || cmd.DataSize != 3 {
		t.Errorf("unexpected command entry: %+v", cmd)
	}
	var decoded protocol.Command
	if err := json.Unmarshal([]byte(cmd.Payload), &decoded); err != nil {
		t.Fatalf("payload is not a command: %v", err)
	}
	if len(decoded.Data) != 0 {
		t.Error("journal payload should not carry bulk data")
	}
	if entries[1].Direction != DirectionCallback || entries[1].Handle != 9 {
		t.Errorf("unexpected callback entry: %+v", entries[1])
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if session.EndedAt == nil {
		t.Error("closing the journal should end the session")
	}

	j.RecordCommand(&protocol.Command{Type: protocol.CommandDeleteImage, RequestID: 2, Handle: 9})
	if j.Dropped() != 1 {
		t.Errorf("expected a record after close to be dropped, dropped=%d", j.Dropped())
	}
}
