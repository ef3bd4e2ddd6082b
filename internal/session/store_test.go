package session

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(algo int) Record {
	return Record{
		Dataframe:   [][]float64{{12.4, 0.03}, {12.1, 0.02}},
		Sensors:     []string{"Temperatur", "Wärme Diff"},
		Algorithm:   algo,
		Timestamps:  []string{"2020-03-14T15:00:00", "2020-03-14T15:15:00"},
		ErrorSeries: []float64{0.03, 0.02},
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := NewStore(16, time.Hour)

	_, err := store.Get("u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverwrites(t *testing.T) {
	store := NewStore(16, time.Hour)
	store.Put("u1", testRecord(0))
	store.Put("u1", testRecord(1))

	rec, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Algorithm)
	assert.Equal(t, 1, store.Len())
}

func TestCapacityEviction(t *testing.T) {
	store := NewStore(1, time.Hour)
	store.Put("u1", testRecord(0))
	store.Put("u2", testRecord(1))

	_, err := store.Get("u1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get("u2")
	assert.NoError(t, err)
}

func TestRacingPutsNeverMerge(t *testing.T) {
	store := NewStore(16, time.Hour)
	first := testRecord(0)
	second := testRecord(1)
	second.Sensors = []string{"Elektrizität.1 Diff"}
	second.Dataframe = [][]float64{{0.5}, {0.6}}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Put("u1", first)
		}()
		go func() {
			defer wg.Done()
			store.Put("u1", second)
		}()
	}
	wg.Wait()

	got, err := store.Get("u1")
	require.NoError(t, err)
	isFirst := reflect.DeepEqual(got, first)
	isSecond := reflect.DeepEqual(got, second)
	assert.True(t, isFirst || isSecond, fmt.Sprintf("cached record is a merge: %+v", got))
}
