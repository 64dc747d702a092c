package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-vitals/internal/models"
)

func dataset(n int) *models.Dataset {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := &models.Dataset{Days: 1, SamplesPerDay: n}
	for i := 0; i < n; i++ {
		ds.Samples = append(ds.Samples, models.Sample{
			Timestamp:       t0.Add(time.Duration(i) * time.Hour),
			HeartRate:       70,
			BloodOxygen:     98,
			SleepQuality:    7,
			StressLevel:     3,
			BodyTemperature: 98.6,
		})
	}
	return ds
}

func TestPutAndGet(t *testing.T) {
	s := New(4)
	id := s.Put(dataset(3))
	require.NotEmpty(t, id)

	ds, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	// Get hands out a copy
	ds.Samples[0].HeartRate = 150
	again, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 70, again.Samples[0].HeartRate)
}

func TestGetUnknown(t *testing.T) {
	s := New(2)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.WithWrite("nope", func(*Entry) error { return nil }), ErrNotFound)
}

func TestOldestEvicted(t *testing.T) {
	s := New(2)
	a := s.Put(dataset(1))
	b := s.Put(dataset(1))
	c := s.Put(dataset(1))

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{b, c}, s.IDs())
	_, err := s.Get(a)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultCapacity(t *testing.T) {
	s := New(0)
	for i := 0; i < DefaultCapacity+3; i++ {
		s.Put(dataset(1))
	}
	assert.Equal(t, DefaultCapacity, s.Len())
}

func TestDelete(t *testing.T) {
	s := New(3)
	id := s.Put(dataset(1))
	assert.True(t, s.Delete(id))
	assert.False(t, s.Delete(id))
	assert.Zero(t, s.Len())
	assert.Empty(t, s.IDs())
}

func TestWithWriteMutatesInPlace(t *testing.T) {
	s := New(3)
	id := s.Put(dataset(2))

	require.NoError(t, s.WithWrite(id, func(e *Entry) error {
		e.Dataset.Samples[1].Anomaly = true
		return nil
	}))
	require.NoError(t, s.WithRead(id, func(e *Entry) error {
		assert.Equal(t, []int{1}, e.Dataset.Anomalies())
		assert.Equal(t, id, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
		return nil
	}))
}

func TestConcurrentWritersSerialized(t *testing.T) {
	s := New(1)
	id := s.Put(dataset(1))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithWrite(id, func(e *Entry) error {
				e.Dataset.Samples[0].Steps++
				return nil
			})
		}()
	}
	wg.Wait()

	ds, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 50, ds.Samples[0].Steps)
}

func TestReadsDoNotRefreshEviction(t *testing.T) {
	s := New(2)
	a := s.Put(dataset(1))
	b := s.Put(dataset(1))

	_, err := s.Get(a)
	require.NoError(t, err)
	c := s.Put(dataset(1))

	_, err = s.Get(a)
	assert.ErrorIs(t, err, ErrNotFound, "oldest is evicted even when recently read")
	assert.Equal(t, []string{b, c}, s.IDs())
}
