package manifest

import (
	"sync"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	now := time.Unix(1_700_000_000, 0)
	key := "/grids/1/SteamGridSync/440p.png"

	// first sighting starts at zero
	assert.True(t, m.Observe(key, "h1", now))
	assert.Equal(t, &Entry{Hash: "h1", Timestamp: 0}, m.Lookup(key))

	// same content leaves the entry alone
	assert.False(t, m.Observe(key, "h1", now.Add(time.Hour)))
	assert.Equal(t, int64(0), m.Lookup(key).Timestamp)

	// a content change advances the timestamp
	assert.True(t, m.Observe(key, "h2", now))
	assert.Equal(t, &Entry{Hash: "h2", Timestamp: now.Unix()}, m.Lookup(key))
}

func TestObserve_AfterAdoptKeepsRemoteTimestamp(t *testing.T) {
	m := New()
	m.Adopt("k", "remote-hash", 42)

	assert.False(t, m.Observe("k", "remote-hash", time.Now()))
	assert.Equal(t, int64(42), m.Lookup("k").Timestamp)
}

func TestLookupReturnsCopy(t *testing.T) {
	m := New()
	m.Adopt("k", "h", 1)
	e := m.Lookup("k")
	e.Timestamp = 99
	assert.Equal(t, int64(1), m.Lookup("k").Timestamp)
	assert.Nil(t, m.Lookup("missing"))
}

func TestRetain(t *testing.T) {
	m := FromEntries(map[string]Entry{
		"a": {Hash: "1"},
		"b": {Hash: "2"},
		"c": {Hash: "3"},
	})

	dropped := m.Retain(mapset.NewSet("a", "c", "z"))
	assert.Equal(t, 1, dropped)
	assert.True(t, m.Keys().Equal(mapset.NewSet("a", "c")))
}

func TestConcurrentMutation(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Adopt(string(rune('a'+i%26)), "h", int64(i))
			m.Lookup("a")
		}()
	}
	wg.Wait()
	assert.Equal(t, 26, m.Len())
}

func TestEncodeDecode(t *testing.T) {
	m := FromEntries(map[string]Entry{
		"/g/1/SteamGridSync/10.png": {Hash: "abc", Timestamp: 1700000000},
	})
	data, err := Encode(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"/g/1/SteamGridSync/10.png":{"hash":"abc","timestamp":1700000000}}`, string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), back.Entries())
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte(`{"a": [`))
	assert.ErrorIs(t, err, ErrCorrupt)

	m, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())

	m, err = Decode([]byte("null"))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}
