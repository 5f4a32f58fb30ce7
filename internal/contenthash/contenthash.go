// Package contenthash computes the Dropbox content hash: the input is split
// into 4 MiB blocks, each block is SHA-256 hashed, and the concatenated block
// digests are hashed once more.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
)

const (
	BlockSize = 4 * 1024 * 1024
	Size      = sha256.Size
)

var ErrNotFound = errors.New("contenthash: file not found")

type digest struct {
	block  hash.Hash
	filled int
	sums   []byte
}

// New returns a streaming hash.Hash producing the content hash.
func New() hash.Hash {
	return &digest{block: sha256.New()}
}

func (d *digest) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		chunk := p
		if room := BlockSize - d.filled; len(chunk) > room {
			chunk = chunk[:room]
		}
		d.block.Write(chunk)
		d.filled += len(chunk)
		p = p[len(chunk):]

		if d.filled == BlockSize {
			d.sums = d.block.Sum(d.sums)
			d.block.Reset()
			d.filled = 0
		}
	}
	return n, nil
}

func (d *digest) Sum(b []byte) []byte {
	sums := d.sums
	if d.filled > 0 {
		sums = d.block.Sum(append([]byte(nil), d.sums...))
	}
	total := sha256.Sum256(sums)
	return append(b, total[:]...)
}

func (d *digest) Reset() {
	d.block.Reset()
	d.filled = 0
	d.sums = d.sums[:0]
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return BlockSize }

// Sum returns the hex content hash of data.
func Sum(data []byte) string {
	h := New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Reader hashes everything readable from r.
func Reader(r io.Reader) (string, error) {
	h := New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hash returns the content hash of the file at path. A file that is missing,
// or disappears while it is read, yields ErrNotFound.
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", err
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}
