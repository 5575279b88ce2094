// Package drbg implements the per-connection deterministic random bit
// generator handed to the TLS session as its randomness source.
//
// A DRBG is seeded exactly once from an entropy source mixed with an
// application personalization string (HKDF-SHA256), and then produces
// output from a ChaCha20 keystream.  It is never reseeded: a fresh
// connection attempt builds a fresh DRBG.
package drbg

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// EntropyLen is the number of bytes drawn from the entropy source at
// seed time.
const EntropyLen = 48

// DRBG is an io.Reader producing pseudo-random bytes.  It is safe for
// concurrent use because crypto/tls may draw from it on both the read
// and write paths.
type DRBG struct {
	mu     sync.Mutex
	stream *chacha20.Cipher
	freed  bool
}

// New seeds a DRBG from entropy (crypto/rand.Reader when nil) and the
// personalization string.
func New(entropy io.Reader, personalization string) (*DRBG, error) {
	if entropy == nil {
		entropy = rand.Reader
	}

	seed := make([]byte, EntropyLen)
	if _, err := io.ReadFull(entropy, seed); err != nil {
		return nil, fmt.Errorf("reading entropy: %w", err)
	}
	defer clear(seed)

	kdf := hkdf.New(sha256.New, seed, nil, []byte(personalization))
	material := make([]byte, chacha20.KeySize+chacha20.NonceSize)
	defer clear(material)
	if _, err := io.ReadFull(kdf, material); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	stream, err := chacha20.NewUnauthenticatedCipher(
		material[:chacha20.KeySize], material[chacha20.KeySize:])
	if err != nil {
		return nil, fmt.Errorf("initialising stream: %w", err)
	}
	return &DRBG{stream: stream}, nil
}

// Read fills p with keystream output.
func (d *DRBG) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.freed {
		return 0, io.ErrClosedPipe
	}
	clear(p)
	d.stream.XORKeyStream(p, p)
	return len(p), nil
}

// Free discards the generator state.  Further reads fail.  Free is
// idempotent and safe on a nil receiver.
func (d *DRBG) Free() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed = true
	d.stream = nil
}
