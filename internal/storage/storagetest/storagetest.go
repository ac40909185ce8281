// Package storagetest holds the behavior every storage.Provider must share.
// Driver packages call Run against a freshly initialized store.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// NewUser inserts a user with a unique email and returns it
func NewUser(t *testing.T, p storage.Provider) models.User {
	t.Helper()
	id := uuid.NewString()
	u := models.User{
		ID:           id,
		Username:     "user-" + id[:8],
		Email:        id + "@example.com",
		PasswordHash: "hash",
		Role:         "user",
		CreatedAt:    base,
	}
	if err := p.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u
}

// NewHabit inserts a habit owned by userID and returns it as stored
func NewHabit(t *testing.T, p storage.Provider, userID string, repeat int) models.Habit {
	t.Helper()
	h := models.Habit{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        "Read",
		Category:    "other",
		RepeatCount: repeat,
		CreatedAt:   base,
	}
	if err := p.CreateHabit(context.Background(), h); err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	stored, err := p.GetHabit(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	return stored
}

func addCompletion(t *testing.T, p storage.Provider, habitID string, at time.Time) models.Completion {
	t.Helper()
	c := models.Completion{ID: uuid.NewString(), HabitID: habitID, CompletedAt: at, CoinsEarned: 10}
	err := p.WithHabitTx(context.Background(), habitID, func(tx storage.Tx, _ models.Habit) error {
		return tx.AddCompletion(context.Background(), c)
	})
	if err != nil {
		t.Fatalf("AddCompletion failed: %v", err)
	}
	return c
}

// Run exercises p. The store must be empty and migrated.
func Run(t *testing.T, p storage.Provider) {
	t.Run("Users", func(t *testing.T) { testUsers(t, p) })
	t.Run("Habits", func(t *testing.T) { testHabits(t, p) })
	t.Run("HabitVersioning", func(t *testing.T) { testHabitVersioning(t, p) })
	t.Run("DeleteHabitCascades", func(t *testing.T) { testDeleteCascade(t, p) })
	t.Run("Completions", func(t *testing.T) { testCompletions(t, p) })
	t.Run("CompletionStats", func(t *testing.T) { testCompletionStats(t, p) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, p) })
	t.Run("Balance", func(t *testing.T) { testBalance(t, p) })
	t.Run("SerializedTx", func(t *testing.T) { testSerializedTx(t, p) })
}

func testUsers(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)

	got, err := p.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != u.Email || got.Role != "user" || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("unexpected user: %+v", got)
	}

	byEmail, err := p.GetUserByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("expected %s, got %s", u.ID, byEmail.ID)
	}

	dup := u
	dup.ID = uuid.NewString()
	if err := p.CreateUser(ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for repeated email, got %v", err)
	}

	if _, err := p.GetUser(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got.Username = "renamed"
	got.Email = "renamed-" + u.Email
	got.PasswordHash = "new-hash"
	got.Balance = 999
	if err := p.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	updated, err := p.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if updated.Username != "renamed" || updated.Email != got.Email || updated.PasswordHash != "new-hash" {
		t.Errorf("update not stored: %+v", updated)
	}
	if updated.Balance != 0 {
		t.Errorf("UpdateUser must not touch the balance, got %d", updated.Balance)
	}

	other := NewUser(t, p)
	other.Email = got.Email
	if err := p.UpdateUser(ctx, other); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for a taken email, got %v", err)
	}

	missing := got
	missing.ID = "missing"
	missing.Email = "missing@example.com"
	if err := p.UpdateUser(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testHabits(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	other := NewUser(t, p)

	active := NewHabit(t, p, u.ID, 2)
	archived := NewHabit(t, p, u.ID, 1)
	NewHabit(t, p, other.ID, 1)

	if active.Version != 1 || active.Streak != 0 || active.LastCheckDate != nil {
		t.Errorf("unexpected fresh habit: %+v", active)
	}

	archived.Archived = true
	if _, err := p.UpdateHabit(ctx, archived); err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}

	yes, no := true, false
	tests := []struct {
		name     string
		archived *bool
		want     int
	}{
		{"all", nil, 2},
		{"active", &no, 1},
		{"archived", &yes, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			habits, err := p.ListHabits(ctx, storage.HabitFilter{UserID: u.ID, Archived: tt.archived})
			if err != nil {
				t.Fatalf("ListHabits failed: %v", err)
			}
			if len(habits) != tt.want {
				t.Errorf("expected %d habits, got %d", tt.want, len(habits))
			}
		})
	}

	if _, err := p.GetHabit(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testHabitVersioning(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	h := NewHabit(t, p, u.ID, 1)

	checked := base.Add(2 * time.Hour)
	h.Name = "Read more"
	h.Streak = 4
	h.LastCheckDate = &checked
	updated, err := p.UpdateHabit(ctx, h)
	if err != nil {
		t.Fatalf("UpdateHabit failed: %v", err)
	}
	if updated.Version != h.Version+1 {
		t.Errorf("expected version %d, got %d", h.Version+1, updated.Version)
	}

	stored, err := p.GetHabit(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if stored.Name != "Read more" || stored.Streak != 4 || stored.LastCheckDate == nil || !stored.LastCheckDate.Equal(checked) {
		t.Errorf("update not persisted: %+v", stored)
	}

	// h still carries the old version
	if _, err := p.UpdateHabit(ctx, h); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for stale version, got %v", err)
	}

	h.ID = "missing"
	if _, err := p.UpdateHabit(ctx, h); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testDeleteCascade(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	h := NewHabit(t, p, u.ID, 1)
	addCompletion(t, p, h.ID, base)

	if err := p.DeleteHabit(ctx, h.ID); err != nil {
		t.Fatalf("DeleteHabit failed: %v", err)
	}
	if _, err := p.GetHabit(ctx, h.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected habit to be gone, got %v", err)
	}
	completions, err := p.ListCompletions(ctx, h.ID)
	if err != nil {
		t.Fatalf("ListCompletions failed: %v", err)
	}
	if len(completions) != 0 {
		t.Errorf("expected completions to be deleted, got %d", len(completions))
	}
	if err := p.DeleteHabit(ctx, h.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func testCompletions(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	h := NewHabit(t, p, u.ID, 1)

	first := addCompletion(t, p, h.ID, base)
	second := addCompletion(t, p, h.ID, base.Add(24*time.Hour))

	completions, err := p.ListCompletions(ctx, h.ID)
	if err != nil {
		t.Fatalf("ListCompletions failed: %v", err)
	}
	if len(completions) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(completions))
	}
	if completions[0].ID != second.ID || completions[1].ID != first.ID {
		t.Errorf("expected newest first, got %s then %s", completions[0].ID, completions[1].ID)
	}
	if !completions[1].CompletedAt.Equal(base) || completions[1].CoinsEarned != 10 {
		t.Errorf("unexpected completion: %+v", completions[1])
	}

	err = p.WithHabitTx(ctx, h.ID, func(tx storage.Tx, _ models.Habit) error {
		if err := tx.DeleteCompletion(ctx, first.ID); err != nil {
			return err
		}
		remaining, err := tx.Completions(ctx)
		if err != nil {
			return err
		}
		if len(remaining) != 1 {
			return fmt.Errorf("expected 1 completion inside tx, got %d", len(remaining))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("delete tx failed: %v", err)
	}

	err = p.WithHabitTx(ctx, h.ID, func(tx storage.Tx, _ models.Habit) error {
		return tx.DeleteCompletion(ctx, first.ID)
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for deleted completion, got %v", err)
	}
}

func testCompletionStats(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	a := NewHabit(t, p, u.ID, 2)
	b := NewHabit(t, p, u.ID, 1)
	NewHabit(t, p, u.ID, 1)

	day := base.Truncate(24 * time.Hour)
	addCompletion(t, p, a.ID, day.Add(-2*time.Hour))
	addCompletion(t, p, a.ID, day.Add(time.Hour))
	addCompletion(t, p, a.ID, day.Add(2*time.Hour))
	addCompletion(t, p, b.ID, day.Add(-time.Hour))

	stats, err := p.CompletionStats(ctx, u.ID, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("CompletionStats failed: %v", err)
	}
	if got := stats[a.ID]; got.Total != 3 || got.InRange != 2 {
		t.Errorf("unexpected stats for a: %+v", got)
	}
	if got := stats[b.ID]; got.Total != 1 || got.InRange != 0 {
		t.Errorf("unexpected stats for b: %+v", got)
	}
	if len(stats) != 2 {
		t.Errorf("expected habits without completions to be absent, got %d entries", len(stats))
	}
}

func testTxRollback(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	h := NewHabit(t, p, u.ID, 1)
	boom := errors.New("boom")

	err := p.WithHabitTx(ctx, h.ID, func(tx storage.Tx, habit models.Habit) error {
		if err := tx.AddCompletion(ctx, models.Completion{ID: uuid.NewString(), HabitID: h.ID, CompletedAt: base}); err != nil {
			return err
		}
		habit.Streak = 1
		if _, err := tx.SaveHabit(ctx, habit); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to be returned, got %v", err)
	}

	completions, _ := p.ListCompletions(ctx, h.ID)
	if len(completions) != 0 {
		t.Errorf("expected rollback to discard the completion, got %d", len(completions))
	}
	stored, _ := p.GetHabit(ctx, h.ID)
	if stored.Streak != 0 || stored.Version != h.Version {
		t.Errorf("expected rollback to discard the habit update, got %+v", stored)
	}

	if err := p.WithHabitTx(ctx, "missing", func(storage.Tx, models.Habit) error { return nil }); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing habit, got %v", err)
	}
}

func testBalance(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	h := NewHabit(t, p, u.ID, 1)

	adjust := func(delta int) int {
		t.Helper()
		var balance int
		err := p.WithHabitTx(ctx, h.ID, func(tx storage.Tx, _ models.Habit) error {
			var err error
			balance, err = tx.AdjustBalance(ctx, u.ID, delta)
			return err
		})
		if err != nil {
			t.Fatalf("AdjustBalance(%d) failed: %v", delta, err)
		}
		return balance
	}

	if got := adjust(10); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
	if got := adjust(-25); got != 0 {
		t.Errorf("expected balance to clamp at 0, got %d", got)
	}

	stored, err := p.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if stored.Balance != 0 {
		t.Errorf("expected stored balance 0, got %d", stored.Balance)
	}
}

// testSerializedTx checks that concurrent read-modify-write transactions on
// one habit never lose an update.
func testSerializedTx(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	u := NewUser(t, p)
	h := NewHabit(t, p, u.ID, 1)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.WithHabitTx(ctx, h.ID, func(tx storage.Tx, habit models.Habit) error {
				habit.Streak++
				_, err := tx.SaveHabit(ctx, habit)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("transaction failed: %v", err)
		}
	}

	stored, err := p.GetHabit(ctx, h.ID)
	if err != nil {
		t.Fatalf("GetHabit failed: %v", err)
	}
	if stored.Streak != workers {
		t.Errorf("expected streak %d after %d serialized increments, got %d", workers, workers, stored.Streak)
	}
}
