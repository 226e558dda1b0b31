package cleanup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/euclid/pkg/logging"
	"github.com/psantana5/euclid/pkg/models"
	"github.com/psantana5/euclid/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logging.Logger {
	l := logging.NewLogger(logging.ERROR, false)
	l.SetOutput(&bytes.Buffer{})
	return l
}

func save(t *testing.T, s store.Store, age time.Duration, now time.Time) string {
	t.Helper()
	c := &models.Computation{
		ID:        uuid.New().String(),
		N:         6,
		M:         9,
		Result:    3,
		Source:    models.SourceSingle,
		CreatedAt: now.Add(-age),
	}
	require.NoError(t, s.SaveComputation(c))
	return c.ID
}

func TestRunOncePrunesOldHistory(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore()
	oldID := save(t, s, 48*time.Hour, now)
	newID := save(t, s, time.Hour, now)

	m := NewManager(Config{Enabled: true, MaxAge: 24 * time.Hour, Interval: time.Hour}, s, quietLogger())
	m.now = func() time.Time { return now }

	removed, err := m.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.GetComputation(oldID)
	assert.ErrorIs(t, err, store.ErrComputationNotFound)
	_, err = s.GetComputation(newID)
	assert.NoError(t, err)

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats.TotalDeleted)
	assert.Equal(t, now, stats.LastRun)
}

type failingStore struct{}

func (failingStore) DeleteBefore(time.Time) (int64, error) { return 0, errors.New("disk full") }

func TestRunOnceReportsStoreErrors(t *testing.T) {
	m := NewManager(DefaultConfig(), failingStore{}, quietLogger())
	_, err := m.RunOnce()
	assert.EqualError(t, err, "disk full")
	assert.Zero(t, m.GetStats().TotalDeleted)
}

type vacuumStore struct {
	failingStore
	vacuums int
}

func (v *vacuumStore) Vacuum() error {
	v.vacuums++
	return nil
}

func TestVacuumNow(t *testing.T) {
	vs := &vacuumStore{}
	m := NewManager(DefaultConfig(), vs, quietLogger())
	require.NoError(t, m.VacuumNow())
	assert.Equal(t, 1, vs.vacuums)
	assert.Equal(t, int64(1), m.GetStats().TotalVacuums)

	plain := NewManager(DefaultConfig(), store.NewMemoryStore(), quietLogger())
	assert.NoError(t, plain.VacuumNow(), "stores without vacuum are skipped")
}

func TestStartAndStop(t *testing.T) {
	s := store.NewMemoryStore()
	save(t, s, 2*time.Hour, time.Now())

	m := NewManager(Config{Enabled: true, MaxAge: time.Hour, Interval: 10 * time.Millisecond}, s, quietLogger())
	m.Start(context.Background())

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total, "Start prunes immediately")

	assert.NoError(t, m.Stop(context.Background()))
}

func TestDisabledDoesNothing(t *testing.T) {
	s := store.NewMemoryStore()
	save(t, s, 365*24*time.Hour, time.Now())

	m := NewManager(DefaultConfig(), s, quietLogger())
	m.Start(context.Background())
	require.NoError(t, m.Stop(context.Background()))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
}
