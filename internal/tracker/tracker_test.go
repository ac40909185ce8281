package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/julianstephens/habittrack/internal/models"
	"github.com/julianstephens/habittrack/internal/storage"
	"github.com/julianstephens/habittrack/internal/storage/sqlite"
	"github.com/julianstephens/habittrack/internal/streak"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc   *Service
	store *sqlite.Store
	clock *clock
	user  models.User
}

func setupService(t *testing.T) *fixture {
	t.Helper()
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "habittrack.db"))
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })

	c := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := New(store, streak.New(streak.Config{}), WithClock(c.Now), WithBcryptCost(bcrypt.MinCost))

	user, err := svc.Register(context.Background(), RegisterInput{Username: "ada", Email: "Ada@Example.com", Password: "secret"})
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, clock: c, user: user}
}

func (f *fixture) habit(t *testing.T, repeat int) models.Habit {
	t.Helper()
	h, err := f.svc.CreateHabit(context.Background(), CreateHabitInput{UserID: f.user.ID, Name: "Read", RepeatCount: repeat})
	require.NoError(t, err)
	return h
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 1)

	res, err := f.svc.Complete(ctx, f.user.ID, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CompletedToday)
	assert.Equal(t, 1, res.Target)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 10, res.Balance)
	assert.Equal(t, h.ID, res.Completion.HabitID)

	stored, err := f.store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)
	require.NotNil(t, stored.LastCheckDate)
	assert.True(t, stored.LastCheckDate.Equal(f.clock.Now()))

	_, err = f.svc.Complete(ctx, f.user.ID, h.ID)
	assert.ErrorIs(t, err, streak.ErrLimitReached)

	completions, err := f.store.ListCompletions(ctx, h.ID)
	require.NoError(t, err)
	assert.Len(t, completions, 1)

	user, err := f.svc.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, user.Balance, "rejected completion must not credit coins")
}

func TestComplete_Ownership(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 1)

	other, err := f.svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, other.ID, h.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Complete(ctx, f.user.ID, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUncomplete_RecomputesStreak(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 2)

	complete := func() CompleteResult {
		res, err := f.svc.Complete(ctx, f.user.ID, h.ID)
		require.NoError(t, err)
		return res
	}

	complete()
	res := complete()
	assert.Equal(t, 1, res.Streak)

	f.clock.Set(time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
	complete()
	last := complete()
	assert.Equal(t, 2, last.Streak)
	assert.Equal(t, 40, last.Balance)

	un, err := f.svc.Uncomplete(ctx, f.user.ID, h.ID, last.Completion.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, un.NewStreak)
	assert.Equal(t, 30, un.Balance)
	assert.Equal(t, last.Completion.ID, un.Removed.ID)

	stored, err := f.store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)

	_, err = f.svc.Uncomplete(ctx, f.user.ID, h.ID, last.Completion.ID)
	assert.ErrorIs(t, err, streak.ErrNotFound)
}

func TestUncomplete_BalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 1)

	res, err := f.svc.Complete(ctx, f.user.ID, h.ID)
	require.NoError(t, err)

	// Spend the coins elsewhere.
	err = f.store.WithHabitTx(ctx, h.ID, func(tx storage.Tx, _ models.Habit) error {
		_, err := tx.AdjustBalance(ctx, f.user.ID, -10)
		return err
	})
	require.NoError(t, err)

	un, err := f.svc.Uncomplete(ctx, f.user.ID, h.ID, res.Completion.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, un.Balance)
	assert.Equal(t, 0, un.NewStreak)
}

func TestComplete_ConcurrentRequestsRespectLimit(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 3)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		limited   int
		others    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Complete(ctx, f.user.ID, h.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, streak.ErrLimitReached):
				limited++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, workers-3, limited)

	completions, err := f.store.ListCompletions(ctx, h.ID)
	require.NoError(t, err)
	assert.Len(t, completions, 3)

	stored, err := f.store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)

	user, err := f.svc.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, user.Balance)
}

func TestCreateHabit_Validation(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	tests := []struct {
		name string
		in   CreateHabitInput
		want error
	}{
		{"zero repeat count", CreateHabitInput{UserID: f.user.ID, Name: "x", RepeatCount: 0}, ErrInvalidInput},
		{"blank name", CreateHabitInput{UserID: f.user.ID, Name: "  ", RepeatCount: 1}, ErrInvalidInput},
		{"unknown user", CreateHabitInput{UserID: "missing", Name: "x", RepeatCount: 1}, storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateHabit(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	h := f.habit(t, 1)
	assert.Equal(t, "other", h.Category)
	assert.Equal(t, 0, h.Streak)
	assert.Nil(t, h.LastCheckDate)
}

func TestUpdateHabit(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 1)

	_, err := f.svc.Complete(ctx, f.user.ID, h.ID)
	require.NoError(t, err)

	name := "Read fiction"
	two := 2
	updated, err := f.svc.UpdateHabit(ctx, f.user.ID, h.ID, HabitPatch{Name: &name, RepeatCount: &two})
	require.NoError(t, err)
	assert.Equal(t, "Read fiction", updated.Name)
	assert.Equal(t, 2, updated.RepeatCount)
	assert.Equal(t, 0, updated.Streak, "raising the target un-qualifies today")

	zero := 0
	_, err = f.svc.UpdateHabit(ctx, f.user.ID, h.ID, HabitPatch{RepeatCount: &zero})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateHabit(ctx, "someone-else", h.ID, HabitPatch{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestArchiveAndList(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	a := f.habit(t, 2)
	b := f.habit(t, 1)

	_, err := f.svc.Complete(ctx, f.user.ID, a.ID)
	require.NoError(t, err)

	// A completion from yesterday counts toward the total only.
	f.clock.Set(time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC))
	_, err = f.svc.Complete(ctx, f.user.ID, a.ID)
	require.NoError(t, err)
	f.clock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	_, err = f.svc.SetArchived(ctx, f.user.ID, b.ID, true)
	require.NoError(t, err)

	active, err := f.svc.ListHabits(ctx, f.user.ID, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)
	assert.Equal(t, 2, active[0].CompletionCount)
	assert.Equal(t, 1, active[0].CompletedToday)
	assert.False(t, active[0].DoneToday)

	archived, err := f.svc.ListHabits(ctx, f.user.ID, true)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, b.ID, archived[0].ID)

	_, err = f.svc.SetArchived(ctx, f.user.ID, b.ID, false)
	require.NoError(t, err)
	active, err = f.svc.ListHabits(ctx, f.user.ID, false)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = f.svc.ListHabits(ctx, "missing", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetHabitAndDelete(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 2)

	_, err := f.svc.Complete(ctx, f.user.ID, h.ID)
	require.NoError(t, err)

	detail, err := f.svc.GetHabit(ctx, f.user.ID, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.CompletionCount)
	assert.Equal(t, 1, detail.Progress.CompletedToday)
	assert.Equal(t, 2, detail.Progress.Target)
	assert.False(t, detail.Progress.DoneToday)

	_, err = f.svc.GetHabit(ctx, "someone-else", h.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	history, err := f.svc.ListCompletions(ctx, f.user.ID, h.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.ErrorIs(t, f.svc.DeleteHabit(ctx, "someone-else", h.ID), ErrForbidden)
	require.NoError(t, f.svc.DeleteHabit(ctx, f.user.ID, h.ID))

	_, err = f.svc.GetHabit(ctx, f.user.ID, h.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecomputeAll(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 1)
	healthy := f.habit(t, 1)

	_, err := f.svc.Complete(ctx, f.user.ID, h.ID)
	require.NoError(t, err)

	stored, err := f.store.GetHabit(ctx, h.ID)
	require.NoError(t, err)
	stored.Streak = 9
	_, err = f.store.UpdateHabit(ctx, stored)
	require.NoError(t, err)

	drifts, err := f.svc.RecomputeAll(ctx, false)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, h.ID, drifts[0].HabitID)
	assert.Equal(t, 9, drifts[0].Stored)
	assert.Equal(t, 1, drifts[0].Computed)
	assert.False(t, drifts[0].Fixed)
	assert.NotEqual(t, healthy.ID, drifts[0].HabitID)

	drifts, err = f.svc.RecomputeAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.True(t, drifts[0].Fixed)

	drifts, err = f.svc.RecomputeAll(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	assert.Equal(t, "ada@example.com", f.user.Email)
	assert.Equal(t, "user", f.user.Role)
	assert.NotEqual(t, "secret", f.user.PasswordHash)

	_, err := f.svc.Register(ctx, RegisterInput{Username: "ada2", Email: "ADA@example.com", Password: "x"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	_, err = f.svc.Register(ctx, RegisterInput{Username: "", Email: "c@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	user, err := f.svc.Login(ctx, " ada@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)

	_, err = f.svc.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	other, err := f.svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "secret"})
	require.NoError(t, err)

	name := "  Ada L. "
	email := " ADA.L@example.com"
	user, err := f.svc.UpdateUser(ctx, f.user.ID, UserPatch{Username: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.Username)
	assert.Equal(t, "ada.l@example.com", user.Email)

	stored, err := f.svc.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada.l@example.com", stored.Email)
	assert.Equal(t, f.user.PasswordHash, stored.PasswordHash)

	// keeping its own email is not a conflict
	user, err = f.svc.UpdateUser(ctx, f.user.ID, UserPatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", user.Username)

	taken := "BOB@example.com"
	_, err = f.svc.UpdateUser(ctx, f.user.ID, UserPatch{Email: &taken})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	blank := "  "
	_, err = f.svc.UpdateUser(ctx, other.ID, UserPatch{Username: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.UpdateUser(ctx, "missing", UserPatch{Username: &name})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)

	err := f.svc.ChangePassword(ctx, f.user.ID, "wrong", "new-secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, f.user.ID, "secret", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = f.svc.ChangePassword(ctx, "missing", "secret", "new-secret")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.svc.ChangePassword(ctx, f.user.ID, "secret", "new-secret"))

	_, err = f.svc.Login(ctx, "ada@example.com", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	user, err := f.svc.Login(ctx, "ada@example.com", "new-secret")
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)

	cost, err := bcrypt.Cost([]byte(user.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

// conflictingStore fails the first n transactions with ErrConflict
type conflictingStore struct {
	storage.Provider
	remaining int
	calls     int
}

func (c *conflictingStore) WithHabitTx(ctx context.Context, habitID string, fn func(storage.Tx, models.Habit) error) error {
	c.calls++
	if c.remaining > 0 {
		c.remaining--
		return storage.ErrConflict
	}
	return c.Provider.WithHabitTx(ctx, habitID, fn)
}

func TestComplete_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	f := setupService(t)
	h := f.habit(t, 1)

	flaky := &conflictingStore{Provider: f.store, remaining: 2}
	svc := New(flaky, f.svc.Engine(), WithClock(f.clock.Now))

	res, err := svc.Complete(ctx, f.user.ID, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 3, flaky.calls)

	broken := &conflictingStore{Provider: f.store, remaining: 10}
	svc = New(broken, f.svc.Engine(), WithClock(f.clock.Now))
	_, err = svc.Uncomplete(ctx, f.user.ID, h.ID, res.Completion.ID)
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 3, broken.calls)
}
