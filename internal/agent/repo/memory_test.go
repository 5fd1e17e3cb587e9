package repo

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/iteira-dev/consult-agent/internal/agent/model"
)

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySessionRepository()

	if got, err := r.Load(ctx, "missing"); err != nil || got != nil {
		t.Fatalf("Load(missing) = %v, %v; want nil, nil", got, err)
	}

	s := model.NewSession("tg:1")
	s.SetProfile("Анна", "женский")
	s.Append(schema.UserMessage("привет"))
	s.Append(schema.AssistantMessage("Здравствуйте, Анна!", nil))
	if err := r.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	s.ClientName = "Пётр"

	got, err := r.Load(ctx, "tg:1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ClientName != "Анна" || got.Gender != "женский" {
		t.Errorf("profile = %q/%q, want Анна/женский", got.ClientName, got.Gender)
	}
	if len(got.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[1].Role != schema.Assistant {
		t.Errorf("second turn role = %q, want assistant", got.Messages[1].Role)
	}
}

func TestMemoryRepositorySaveValidates(t *testing.T) {
	r := NewMemorySessionRepository()
	if err := r.Save(context.Background(), &model.Session{}); err == nil {
		t.Error("saving a session without an id should fail")
	}
	if err := r.Save(context.Background(), nil); err == nil {
		t.Error("saving nil should fail")
	}
}

func TestMemoryRepositoryClear(t *testing.T) {
	ctx := context.Background()
	r := NewMemorySessionRepository()

	s := model.NewSession("tg:2")
	if err := r.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := r.Clear(ctx, "tg:2"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := r.Load(ctx, "tg:2"); got != nil {
		t.Error("session should be gone after Clear")
	}
	if err := r.Clear(ctx, "tg:2"); err != nil {
		t.Errorf("clearing a missing session should be a no-op, got %v", err)
	}
}
