package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"chatrelay/internal/gateway"
	"chatrelay/internal/models"
	"chatrelay/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gw := gateway.Open(db, 128)
	t.Cleanup(func() { _ = gw.Close() })
	s, err := New(gw)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateSession(ctx, "s1", "First chat", models.ModeStandalone)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.ID != "s1" || created.Mode != models.ModeStandalone {
		t.Fatalf("unexpected session: %#v", created)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Title != "First chat" {
		t.Fatalf("title mismatch: %q", got.Title)
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing session, got %v", err)
	}

	if err := s.UpdateSession(ctx, "s1", "Renamed"); err != nil {
		t.Fatalf("rename session: %v", err)
	}
	got, err = s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get after rename: %v", err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("rename not applied: %q", got.Title)
	}
	if got.UpdatedAt.Before(created.UpdatedAt) {
		t.Fatalf("updated_at moved backwards: %v -> %v", created.UpdatedAt, got.UpdatedAt)
	}
}

func TestListSessionsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		if _, err := s.CreateSession(ctx, id, "chat "+id, models.ModeEmbedded); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// Touching s0 promotes it to the top of the list.
	time.Sleep(2 * time.Millisecond)
	if err := s.TouchSession(ctx, "s0"); err != nil {
		t.Fatalf("touch s0: %v", err)
	}

	sessions, err := s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("limit not honored: got %d sessions", len(sessions))
	}
	if sessions[0].ID != "s0" {
		t.Fatalf("expected most recently touched session first, got %s", sessions[0].ID)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, "doomed", "bye", ""); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.AppendMessages(ctx, "doomed", []byte(`[{"role":"user","content":"hi"}]`)); err != nil {
		t.Fatalf("append messages: %v", err)
	}
	if err := s.AddChatMessage(ctx, "doomed", models.RoleUser, "hi", models.ContentText, ""); err != nil {
		t.Fatalf("add chat message: %v", err)
	}

	if err := s.DeleteSession(ctx, "doomed"); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	batches, err := s.Messages(ctx, "doomed")
	if err != nil {
		t.Fatalf("replay after delete errored: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("journal survived cascade: %d batches", len(batches))
	}
	entries, err := s.ChatMessages(ctx, "doomed")
	if err != nil {
		t.Fatalf("chat log after delete errored: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("chat log survived cascade: %d entries", len(entries))
	}
}

func TestDeleteMissingSessionIsNoOp(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteSession(context.Background(), "never-existed"); err != nil {
		t.Fatalf("delete of missing session should be a no-op, got %v", err)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, "s1", "chat", ""); err != nil {
		t.Fatalf("create session: %v", err)
	}
	want := [][]byte{
		[]byte(`[{"role":"user","content":"first"}]`),
		[]byte(`[{"role":"assistant","content":"second"}]`),
		[]byte(`[{"role":"user","content":"third"},{"role":"assistant","content":"fourth"}]`),
	}
	for _, batch := range want {
		if err := s.AppendMessages(ctx, "s1", batch); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(got))
	}
	for i := range want {
		if string(got[i]) != string(want[i]) {
			t.Fatalf("batch %d mismatch: got %s want %s", i, got[i], want[i])
		}
	}

	// The journal rejects a referenced session that does not exist.
	if err := s.AppendMessages(ctx, "ghost", []byte(`[]`)); err != nil {
		t.Logf("foreign key enforced: %v", err)
	} else {
		t.Fatalf("expected foreign key violation for unknown session")
	}
}

func TestChatMessagesInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateSession(ctx, "s1", "chat", ""); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.AddChatMessage(ctx, "s1", models.RoleUser, "hello", models.ContentText, ""); err != nil {
		t.Fatalf("add user message: %v", err)
	}
	if err := s.AddChatMessage(ctx, "s1", models.RoleAssistant, "drawn", models.ContentImage, "https://img.example/1.png"); err != nil {
		t.Fatalf("add assistant message: %v", err)
	}

	entries, err := s.ChatMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("list chat messages: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != models.RoleUser || entries[0].Content != "hello" {
		t.Fatalf("first entry mismatch: %#v", entries[0])
	}
	if entries[1].ContentType != models.ContentImage || entries[1].ImageURL == "" {
		t.Fatalf("image entry mismatch: %#v", entries[1])
	}
}

func TestConfigUpsertIdempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetConfig(ctx, "default_model", "glm-4-flashx"); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := s.SetConfig(ctx, "default_model", "glm-4-plus"); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}

	value, err := s.Config(ctx, "default_model")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if value != "glm-4-plus" {
		t.Fatalf("expected latest value, got %q", value)
	}

	all, err := s.AllConfigs(ctx)
	if err != nil {
		t.Fatalf("all configs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("upsert left %d rows for one key", len(all))
	}

	if _, err := s.Config(ctx, "unset"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unset key, got %v", err)
	}
}

func TestDrawHistoryMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.AddDrawRecord(ctx, fmt.Sprintf("prompt-%d", i), fmt.Sprintf("https://img.example/%d.png", i), "cogview-4", `{"size":"1024x1024"}`); err != nil {
			t.Fatalf("add draw record: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	records, err := s.DrawHistory(ctx, 2)
	if err != nil {
		t.Fatalf("draw history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("limit not honored: %d records", len(records))
	}
	if records[0].Prompt != "prompt-2" || records[1].Prompt != "prompt-1" {
		t.Fatalf("unexpected order: %s then %s", records[0].Prompt, records[1].Prompt)
	}
}

func TestWebCacheLazyExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := models.WebCacheEntry{
		URL:     "https://example.com/page",
		Title:   "Example",
		Content: "page body",
		Summary: "a page",
	}
	// ttl=0 expires immediately; any later read must treat it as absent.
	if err := s.SetWebCache(ctx, entry, 0); err != nil {
		t.Fatalf("set cache: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.WebCache(ctx, entry.URL); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected expired entry to read as absent, got %v", err)
	}

	if err := s.SetWebCache(ctx, entry, time.Hour); err != nil {
		t.Fatalf("refresh cache: %v", err)
	}
	got, err := s.WebCache(ctx, entry.URL)
	if err != nil {
		t.Fatalf("get cache: %v", err)
	}
	if got.Content != "page body" || got.Title != "Example" {
		t.Fatalf("cache entry mismatch: %#v", got)
	}

	// Upsert replaces the previous row for the same url.
	entry.Summary = "rewritten"
	if err := s.SetWebCache(ctx, entry, time.Hour); err != nil {
		t.Fatalf("overwrite cache: %v", err)
	}
	got, err = s.WebCache(ctx, entry.URL)
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if got.Summary != "rewritten" {
		t.Fatalf("expected latest summary, got %q", got.Summary)
	}
}
