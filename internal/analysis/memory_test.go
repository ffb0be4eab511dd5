package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/maauso/phraseloop/internal/audio"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := New(audio.DefaultAnalysisConfig())

	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.ID != a.ID {
		t.Errorf("expected ID %s, got %s", a.ID, saved.ID)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := New(audio.DefaultAnalysisConfig())
	_ = repo.Save(ctx, a)

	_ = a.Start()
	_ = repo.Save(ctx, a)

	saved, _ := repo.FindByID(ctx, a.ID)
	if saved.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, saved.Status)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), "nonexistent")
	if err != ErrAnalysisNotFound {
		t.Errorf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByID_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := New(audio.DefaultAnalysisConfig())
	_ = repo.Save(ctx, a)

	found, _ := repo.FindByID(ctx, a.ID)
	found.AudioPath = "/elsewhere"
	_ = found.Start()

	original, _ := repo.FindByID(ctx, a.ID)
	if original.AudioPath != "" {
		t.Error("modifying returned analysis should not affect repository")
	}
	if original.Status != StatusInQueue {
		t.Error("modifying returned analysis status should not affect repository")
	}
}

func TestMemoryRepository_List_Ordered(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected 0 analyses, got %d", len(list))
	}

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"c", "a", "b"} {
		a := NewWithID(name, audio.DefaultAnalysisConfig())
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_ = repo.Save(ctx, a)
	}

	list, err = repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(list))
	}
	for i, want := range []string{"c", "a", "b"} {
		if list[i].ID != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestMemoryRepository_Delete(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := New(audio.DefaultAnalysisConfig())
	_ = repo.Save(ctx, a)

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.FindByID(ctx, a.ID); err != ErrAnalysisNotFound {
		t.Errorf("expected ErrAnalysisNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, a.ID); err != ErrAnalysisNotFound {
		t.Errorf("expected ErrAnalysisNotFound on second delete, got %v", err)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			_ = repo.Save(ctx, New(audio.DefaultAnalysisConfig()))
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_, _ = repo.List(ctx)
		}
		done <- true
	}()

	<-done
	<-done
}
