package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/roshambo/internal/detector"
	"github.com/ayusman/roshambo/internal/gesture"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, dbPath, s.Path())
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"settings", "samples", "schema_version"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestNewStore_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Settings().Set("round.countdown", "5"))
	require.NoError(t, s.Close())

	s, err = New(dbPath)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Settings().Get("round.countdown")
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestNewStore_InMemory(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Settings().Set("k", "v"))
	v, err := s.Settings().Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestSettings(t *testing.T) {
	repo := newTestStore(t).Settings()

	_, err := repo.Get("classifier.mode")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Set("classifier.mode", "margin"))
	require.NoError(t, repo.Set("classifier.mode", "predicate"))
	v, err := repo.Get("classifier.mode")
	require.NoError(t, err)
	assert.Equal(t, "predicate", v)

	require.NoError(t, repo.SetAll(map[string]string{
		"stabilizer.threshold": "0.7",
		"round.countdown":      "4",
	}))

	all, err := repo.All()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"classifier.mode":      "predicate",
		"stabilizer.threshold": "0.7",
		"round.countdown":      "4",
	}, all)

	require.NoError(t, repo.Delete("round.countdown"))
	assert.ErrorIs(t, repo.Delete("round.countdown"), ErrNotFound)
}

func TestSamples_CreateGetDelete(t *testing.T) {
	repo := newTestStore(t).Samples()

	smp := &Sample{
		Label:     gesture.Rock,
		Predicted: gesture.Rock,
		Landmarks: detector.RockLandmarks(),
	}
	require.NoError(t, repo.Create(smp))
	assert.NotEmpty(t, smp.ID)
	assert.False(t, smp.CreatedAt.IsZero())

	got, err := repo.GetByID(smp.ID)
	require.NoError(t, err)
	assert.Equal(t, gesture.Rock, got.Label)
	assert.Equal(t, detector.RockLandmarks().Points, got.Landmarks.Points)

	require.NoError(t, repo.Delete(smp.ID))
	_, err = repo.GetByID(smp.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(smp.ID), ErrNotFound)
}

func TestSamples_List(t *testing.T) {
	repo := newTestStore(t).Samples()

	empty, err := repo.List(gesture.None)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	for _, l := range []gesture.Label{gesture.Rock, gesture.Paper, gesture.Paper} {
		require.NoError(t, repo.Create(&Sample{Label: l, Predicted: l}))
	}

	all, err := repo.List(gesture.None)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	papers, err := repo.List(gesture.Paper)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
}

func TestSamples_Report(t *testing.T) {
	repo := newTestStore(t).Samples()

	add := func(label, predicted gesture.Label, n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, repo.Create(&Sample{Label: label, Predicted: predicted}))
		}
	}
	add(gesture.Rock, gesture.Rock, 3)
	add(gesture.Rock, gesture.None, 1)
	add(gesture.Scissors, gesture.Paper, 2)

	reports, err := repo.Report()
	require.NoError(t, err)
	require.Len(t, reports, 2)

	rock := reports[0]
	assert.Equal(t, gesture.Rock, rock.Label)
	assert.Equal(t, 4, rock.Total)
	assert.Equal(t, 3, rock.Agreed)
	assert.InDelta(t, 0.75, rock.Agreement, 1e-9)
	assert.Equal(t, map[gesture.Label]int{gesture.Rock: 3, gesture.None: 1}, rock.Predicted)

	scissors := reports[1]
	assert.Equal(t, gesture.Scissors, scissors.Label)
	assert.Zero(t, scissors.Agreed)
	assert.Zero(t, scissors.Agreement)
}
