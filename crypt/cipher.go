// Package crypt encrypts files with a key derived from a password.
//
// A token is laid out as
//
//	version(1) | unix seconds(8) | salt(16) | nonce(24) | ciphertext+tag
//
// The key is argon2id(password, salt) and the AEAD is XChaCha20-Poly1305.
// The whole header is authenticated as additional data, so the embedded
// timestamp cannot be altered without failing decryption.
package crypt

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/gobeaver/nocloud"
)

const (
	version    byte = 0x01
	saltSize        = 16
	keySize         = chacha20poly1305.KeySize
	nonceSize       = chacha20poly1305.NonceSizeX
	headerSize      = 1 + 8 + saltSize + nonceSize

	// MaxClockSkew is how far in the future a token timestamp may be.
	MaxClockSkew = 60 * time.Second
)

// KDFParams are the argon2id cost parameters.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDF follows the argon2id recommendation of RFC 9106 for
// memory-constrained environments.
var DefaultKDF = KDFParams{Time: 3, Memory: 64 * 1024, Threads: 4}

// Cipher encrypts and decrypts tokens.
type Cipher struct {
	clock clockwork.Clock
	ttl   time.Duration
	kdf   KDFParams
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithClock sets the clock used for token timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cipher) { c.clock = clock }
}

// WithTTL rejects tokens older than ttl. Zero accepts any age.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cipher) { c.ttl = ttl }
}

// WithKDF overrides the key derivation cost.
func WithKDF(p KDFParams) Option {
	return func(c *Cipher) { c.kdf = p }
}

// New creates a Cipher.
func New(opts ...Option) *Cipher {
	c := &Cipher{clock: clockwork.NewRealClock(), kdf: DefaultKDF}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt seals plaintext under a key derived from password.
func (c *Cipher) Encrypt(plaintext, password []byte) ([]byte, error) {
	header := make([]byte, headerSize)
	header[0] = version
	binary.BigEndian.PutUint64(header[1:9], uint64(c.clock.Now().Unix()))
	if _, err := rand.Read(header[9:]); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	salt, nonce := header[9:9+saltSize], header[9+saltSize:]

	aead, err := chacha20poly1305.NewX(c.deriveKey(password, salt))
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(plaintext)+aead.Overhead())
	copy(out, header)
	return append(out, aead.Seal(nil, nonce, plaintext, header)...), nil
}

// Decrypt opens a token. A wrong password, a modified token or an expired
// token all fail with nocloud.ErrAuthentication.
func (c *Cipher) Decrypt(token, password []byte) ([]byte, error) {
	if len(token) < headerSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: token too short", nocloud.ErrAuthentication)
	}
	if token[0] != version {
		return nil, fmt.Errorf("%w: unknown token version %d", nocloud.ErrAuthentication, token[0])
	}

	header := token[:headerSize]
	salt, nonce := header[9:9+saltSize], header[9+saltSize:]

	aead, err := chacha20poly1305.NewX(c.deriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, token[headerSize:], header)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong password or corrupted data", nocloud.ErrAuthentication)
	}

	if err := c.checkTimestamp(Timestamp(token)); err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (c *Cipher) checkTimestamp(ts time.Time) error {
	now := c.clock.Now()
	if ts.Sub(now) > MaxClockSkew {
		return fmt.Errorf("%w: token timestamp %s is in the future", nocloud.ErrAuthentication, ts.UTC().Format(time.RFC3339))
	}
	if c.ttl > 0 && now.Sub(ts) > c.ttl {
		return fmt.Errorf("%w: token expired at %s", nocloud.ErrAuthentication, ts.Add(c.ttl).UTC().Format(time.RFC3339))
	}
	return nil
}

func (c *Cipher) deriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, c.kdf.Time, c.kdf.Memory, c.kdf.Threads, keySize)
}

// Timestamp returns the creation time embedded in a token. It is only
// trustworthy once Decrypt has succeeded.
func Timestamp(token []byte) time.Time {
	if len(token) < headerSize {
		return time.Time{}
	}
	return time.Unix(int64(binary.BigEndian.Uint64(token[1:9])), 0)
}
