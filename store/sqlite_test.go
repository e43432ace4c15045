package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func setup(t testing.TB) (*SQLiteStore, *fakeClock) {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func sampleRecord(id string) *models.DiverRecord {
	age, grad := 16, 2026
	return models.NewDiverRecord(id, &models.ProfileInfo{
		First:      "Ann",
		Last:       "Lee",
		Gender:     func() *string { g := "F"; return &g }(),
		FinaAge:    &age,
		HSGradYear: &grad,
	}, models.SkillRatingResult{Springboard: 40.5, Platform: 12.25, Total: 52.75})
}

var ignoreTimes = cmpopts.IgnoreFields(models.DiverRecord{}, "CreatedAt", "UpdatedAt", "LastChangedAt")

func TestSQLiteCreateAndGet(t *testing.T) {
	s, clock := setup(t)
	ctx := context.Background()

	created, err := s.Create(ctx, sampleRecord("101"))
	require.NoError(t, err)
	require.Equal(t, 1, created.Version)
	require.False(t, created.Deleted)
	require.True(t, created.LastChangedAt.Equal(clock.now))

	got, err := s.Get(ctx, "101")
	require.NoError(t, err)
	if diff := cmp.Diff(sampleRecord("101"), got, ignoreTimes); diff != "" {
		t.Fatalf("Get() mismatch (-want +got):\n%s", diff)
	}

	_, err = s.Create(ctx, sampleRecord("101"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteNullableFields(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	rec := models.NewDiverRecord("7", &models.ProfileInfo{First: "Bo", Last: "Kim"}, models.SkillRatingResult{})
	_, err := s.Create(ctx, rec)
	require.NoError(t, err)

	got, err := s.Get(ctx, "7")
	require.NoError(t, err)
	require.Nil(t, got.FinaAge)
	require.Nil(t, got.HSGradYear)
	require.Equal(t, "", got.Gender)
}

func TestSQLiteUpdateVersioning(t *testing.T) {
	s, clock := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, sampleRecord("101"))
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)
	next := sampleRecord("101")
	next.TotalRating = 60

	updated, err := s.Update(ctx, next, 1)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, 60.0, updated.TotalRating)
	require.True(t, updated.LastChangedAt.Equal(clock.now))

	_, err = s.Update(ctx, next, 1)
	require.ErrorIs(t, err, ErrVersionConflict)

	_, err = s.Update(ctx, sampleRecord("404"), 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDeleteAndRevive(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	_, err := s.Create(ctx, sampleRecord("101"))
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete(ctx, "101", 5), ErrVersionConflict)
	require.NoError(t, s.Delete(ctx, "101", 1))

	tomb, err := s.Get(ctx, "101")
	require.NoError(t, err)
	require.True(t, tomb.Deleted)
	require.Equal(t, 2, tomb.Version)

	_, err = s.Update(ctx, sampleRecord("101"), 2)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "101", 2), ErrNotFound)

	revived, err := s.Create(ctx, sampleRecord("101"))
	require.NoError(t, err)
	require.False(t, revived.Deleted)
	require.Equal(t, 3, revived.Version)
}

func TestUpsert(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	outcome, rec, err := Upsert(ctx, s, sampleRecord("101"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)
	require.Equal(t, 1, rec.Version)

	next := sampleRecord("101")
	next.SpringboardRating = 1
	outcome, rec, err = Upsert(ctx, s, next)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.Equal(t, 2, rec.Version)
	require.Equal(t, 1.0, rec.SpringboardRating)

	require.NoError(t, s.Delete(ctx, "101", rec.Version))

	outcome, rec, err = Upsert(ctx, s, sampleRecord("101"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome, "a soft-deleted record goes down the create path")
	require.False(t, rec.Deleted)
}

func TestSQLiteCountStale(t *testing.T) {
	s, clock := setup(t)
	ctx := context.Background()
	start := clock.now

	_, err := s.Create(ctx, sampleRecord("1"))
	require.NoError(t, err)

	clock.now = start.Add(48 * time.Hour)
	_, err = s.Create(ctx, sampleRecord("2"))
	require.NoError(t, err)

	n, err := s.CountStale(ctx, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.CountStale(ctx, start)
	require.NoError(t, err)
	require.Equal(t, 1, n, "the cutoff is inclusive")

	n, err = s.CountStale(ctx, start.Add(-time.Second))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
