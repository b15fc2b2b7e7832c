package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID == uuid.Nil {
		t.Fatal("Create() returned nil session ID")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("Get() ID = %v, want %v", got.ID, sess.ID)
	}
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	store := NewMemoryStore(0)

	if _, err := store.Get(context.Background(), uuid.New()); err != ErrNotFound {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_AppendAndHistory(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.AppendTurn(ctx, sess.ID, "hello", "hi there"); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}

	msgs, err := store.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("History() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "hi there" {
		t.Errorf("second message = %+v", msgs[1])
	}
	if msgs[1].SequenceNumber != msgs[0].SequenceNumber+1 {
		t.Errorf("sequence numbers not consecutive: %d, %d",
			msgs[0].SequenceNumber, msgs[1].SequenceNumber)
	}
}

func TestMemoryStore_SequenceNumbersAcrossTurns(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_ = store.AppendTurn(ctx, sess.ID, "one", "two")
	_ = store.AppendTurn(ctx, sess.ID, "three", "four")

	msgs, err := store.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("History() returned %d messages, want 4", len(msgs))
	}
	for i, m := range msgs {
		if want := i + 1; m.SequenceNumber != want {
			t.Errorf("message %d SequenceNumber = %d, want %d", i, m.SequenceNumber, want)
		}
	}
}

func TestMemoryStore_AppendUnknownSession(t *testing.T) {
	store := NewMemoryStore(0)

	if err := store.AppendTurn(context.Background(), uuid.New(), "a", "b"); err != ErrNotFound {
		t.Errorf("AppendTurn(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_HistoryLimit(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	sess, _ := store.Create(ctx)
	_ = store.AppendTurn(ctx, sess.ID, "first question", "first answer")
	_ = store.AppendTurn(ctx, sess.ID, "second question", "second answer")

	msgs, err := store.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("History() returned %d messages, want 2 (limit)", len(msgs))
	}
	if msgs[0].Content != "second question" {
		t.Errorf("History() should keep the most recent turn, got %q first", msgs[0].Content)
	}
}
