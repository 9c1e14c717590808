// Package digest computes BLAKE3 content digests of streams as they pass
// through, so inputs and outputs are fingerprinted without a second read.
package digest

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Hasher accumulates a BLAKE3 digest over everything written to it.
type Hasher struct {
	h *blake3.Hasher
	n int64
}

// New creates an empty Hasher.
func New() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Write adds p to the digest. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	h.n += int64(len(p))
	return h.h.Write(p)
}

// Size returns the number of bytes hashed so far.
func (h *Hasher) Size() int64 { return h.n }

// Sum returns the hex digest of the bytes hashed so far.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// TeeReader returns a reader that hashes everything read from r into h.
func TeeReader(r io.Reader, h *Hasher) io.Reader {
	return io.TeeReader(r, h)
}

// TeeWriter returns a writer that writes to w and hashes the same bytes.
// Bytes w rejects are not hashed.
func TeeWriter(w io.Writer, h *Hasher) io.Writer {
	return &teeWriter{w: w, h: h}
}

type teeWriter struct {
	w io.Writer
	h *Hasher
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.h.Write(p[:n])
	return n, err
}

// Sum256 returns the hex BLAKE3 digest of data.
func Sum256(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
