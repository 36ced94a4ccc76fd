package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/models"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store"
)

func TestDecodeTimerKeepsIntegers(t *testing.T) {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	secs := 5400
	raw, err := json.Marshal(models.TimerRecord{
		TimerID:   "timer_pg",
		Time:      &secs,
		Status:    models.StatePaused,
		CreatedAt: &created,
	})
	require.NoError(t, err)

	rec, err := decodeTimer("ref-1", raw)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", rec.ID)
	require.NotNil(t, rec.Time)
	assert.Equal(t, 5400, *rec.Time)
	assert.Nil(t, rec.StartTime)
	require.NotNil(t, rec.CreatedAt)
	assert.True(t, created.Equal(*rec.CreatedAt))

	_, err = decodeTimer("ref-2", []byte("{"))
	assert.Error(t, err)
}

// TestStoreIntegration runs against a live database when TEST_DATABASE_URL is set.
func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, `TRUNCATE timers, timer_actions`)
	require.NoError(t, err)

	created := time.Now().UTC().Truncate(time.Microsecond)
	secs := 1800
	rec := models.TimerRecord{TimerID: "timer_it", CustomerName: "Jo", Time: &secs, Status: models.StateNotStarted, CreatedAt: &created}

	ref, err := s.CreateTimer(ctx, rec)
	require.NoError(t, err)

	got, err := s.GetTimer(ctx, "timer_it")
	require.NoError(t, err)
	assert.Equal(t, ref, got.ID)
	assert.Equal(t, "Jo", got.CustomerName)

	rec.Status = models.StateExpired
	require.NoError(t, s.UpdateTimer(ctx, ref, rec))
	active, err := s.ListActiveTimers(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, s.UpdateTimer(ctx, "missing", rec), store.ErrNotFound)

	newTime := 3600
	require.NoError(t, s.AppendAction(ctx, models.AuditEntry{
		TimerID: "timer_it", Action: models.ActionChangeTime, Timestamp: created, NewTime: &newTime,
	}))
	actions, err := s.ListActionsBetween(ctx, created.Add(-time.Minute), created.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.NotNil(t, actions[0].NewTime)
	assert.Equal(t, 3600, *actions[0].NewTime)

	between, err := s.ListTimersCreatedBetween(ctx, created.Add(-time.Minute), created.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, between, 1)
}
