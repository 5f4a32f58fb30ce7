package contenthash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reference computes the digest block by block without streaming.
func reference(data []byte) string {
	var sums []byte
	for start := 0; start < len(data); start += BlockSize {
		end := min(start+BlockSize, len(data))
		s := sha256.Sum256(data[start:end])
		sums = append(sums, s[:]...)
	}
	total := sha256.Sum256(sums)
	return hex.EncodeToString(total[:])
}

func TestSum(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 11},
		{"exactly one block", BlockSize},
		{"one block plus one", BlockSize + 1},
		{"two blocks and a half", 2*BlockSize + BlockSize/2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bytes.Repeat([]byte{0x5a}, tt.size)
			assert.Equal(t, reference(data), Sum(data))
		})
	}
}

func TestSum_EmptyIsHashOfNothing(t *testing.T) {
	// no blocks means the outer hash runs over an empty concatenation
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil))
}

func TestStreamingWritesMatchOneShot(t *testing.T) {
	data := bytes.Repeat([]byte("grid"), BlockSize/2+17)

	h := New()
	for chunk := data; len(chunk) > 0; {
		n := min(len(chunk), 1<<20+3)
		_, err := h.Write(chunk[:n])
		require.NoError(t, err)
		chunk = chunk[n:]
	}
	assert.Equal(t, Sum(data), hex.EncodeToString(h.Sum(nil)))

	// Sum does not consume state
	assert.Equal(t, Sum(data), hex.EncodeToString(h.Sum(nil)))

	h.Reset()
	assert.Equal(t, Sum(nil), hex.EncodeToString(h.Sum(nil)))
}

func TestHash_IdenticalBytesDifferentPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "10p.png")
	b := filepath.Join(dir, "sub", "20p.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0o755))
	require.NoError(t, os.WriteFile(a, []byte("same bytes"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("same bytes"), 0o644))

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Equal(t, Sum([]byte("same bytes")), ha)
}

func TestHash_NotFound(t *testing.T) {
	_, err := Hash(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.png")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	calls := 0
	c := NewCache(8, time.Minute)
	c.hash = func(p string) (string, error) {
		calls++
		return Hash(p)
	}

	st := Stat{Path: path, Size: 2, ModTime: time.Unix(100, 0), ChangeTime: time.Unix(100, 0)}
	first, err := c.Hash(st)
	require.NoError(t, err)
	second, err := c.Hash(st)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	st.ModTime = time.Unix(200, 0)
	third, err := c.Hash(st)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, c.Len())
}
