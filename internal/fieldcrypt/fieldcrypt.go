// Package fieldcrypt protects sensitive ledger fields at rest with
// AES-256-GCM. Keys are derived per user from a persisted per-installation
// salt; the key itself is never stored. The on-disk shape of an encrypted
// field is base64(IV || ciphertext) with a 12-byte IV.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the size of the per-installation random salt.
	SaltSize = 16
	ivSize   = 12
	keySize  = 32
	// Iterations is the PBKDF2-HMAC-SHA256 iteration count.
	Iterations = 100_000
)

// Codec encrypts and decrypts individual field values for one user.
type Codec struct {
	aead cipher.AEAD
}

// New derives the user's key from the installation salt and builds the
// codec. The salt comes from the store's guarded get-or-create so concurrent
// first use cannot mint two different salts.
func New(salt []byte, userID string) (*Codec, error) {
	if len(salt) == 0 {
		return nil, fmt.Errorf("fieldcrypt: empty salt")
	}
	if userID == "" {
		return nil, fmt.Errorf("fieldcrypt: empty user id")
	}
	key := pbkdf2.Key([]byte(userID), salt, Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// NewSalt generates a fresh random installation salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("fieldcrypt: generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt seals value under a fresh random IV. Failure here is fatal for
// this field's write.
func (c *Codec) Encrypt(value string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("fieldcrypt: generate iv: %w", err)
	}
	sealed := c.aead.Seal(iv, iv, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. An authentication-tag mismatch (any tampering,
// including a single flipped ciphertext byte) is a hard failure; corrupted
// data is never returned.
func (c *Codec) Decrypt(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: not base64: %w", err)
	}
	if len(raw) < ivSize {
		return "", fmt.Errorf("fieldcrypt: blob too short: %d bytes", len(raw))
	}
	plain, err := c.aead.Open(nil, raw[:ivSize], raw[ivSize:], nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: open: %w", err)
	}
	return string(plain), nil
}

// DecryptOrRaw is the read path for mixed legacy/migrated datasets: when
// stored does not look encrypted it is returned as-is, and when decryption
// of an encrypted-looking value fails the raw value is surfaced instead of
// aborting the read. onFailure, if non-nil, observes that fallback.
func (c *Codec) DecryptOrRaw(stored string, onFailure func(error)) string {
	if !LooksEncrypted(stored) {
		return stored
	}
	plain, err := c.Decrypt(stored)
	if err != nil {
		if onFailure != nil {
			onFailure(err)
		}
		return stored
	}
	return plain
}

// LooksEncrypted reports whether a stored string is plausibly a field
// envelope: valid base64 decoding to at least an IV's worth of bytes that do
// not read as printable text. It lets legacy plaintext rows coexist with
// migrated ones without a schema-version marker.
func LooksEncrypted(s string) bool {
	if len(s) < base64.StdEncoding.EncodedLen(ivSize) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	if len(raw) < ivSize {
		return false
	}
	return !plausiblyPrintable(raw)
}

// plausiblyPrintable reports whether raw reads as ordinary text: valid UTF-8
// with a high share of printable runes.
func plausiblyPrintable(raw []byte) bool {
	if !utf8.Valid(raw) {
		return false
	}
	total, printable := 0, 0
	for _, r := range string(raw) {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			printable++
		}
	}
	if total == 0 {
		return true
	}
	return float64(printable)/float64(total) > 0.9
}
