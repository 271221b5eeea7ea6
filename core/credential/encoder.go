// Package credential seals sensitive field values and produces one-way digests and random secrets.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/trezcool/academia/core"
)

// Envelope parameters. They are not recorded in the envelope itself:
// changing any of them makes existing envelopes undecryptable.
const (
	SaltSize  = 64
	IVSize    = 16
	TagSize   = 16
	KeyLength = 32 // AES-256

	envelopeParts = 4
	separator     = ":"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrAuthenticationTag = errors.New("envelope authentication failed")

	randReader io.Reader = rand.Reader // mockable
)

// Encoder encrypts with AES-256-GCM under a key derived by PBKDF2-SHA512
// from the configured secret and a fresh salt per envelope.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	secret     []byte
	iterations int
}

// NewEncoder returns an Encoder for the configured encryption secret.
func NewEncoder(conf *core.Config) (*Encoder, error) {
	return NewEncoderWithSecret(conf.EncryptionKey, conf.KDFIterations)
}

// NewEncoderWithSecret fails with a *core.ConfigurationError if the secret is shorter than
// core.MinSecretLength. Iterations below core.MinKDFIterations are raised to it.
func NewEncoderWithSecret(secret string, iterations int) (*Encoder, error) {
	if err := checkSecret(secret); err != nil {
		return nil, err
	}
	if iterations < core.MinKDFIterations {
		iterations = core.MinKDFIterations
	}
	return &Encoder{secret: []byte(secret), iterations: iterations}, nil
}

func checkSecret(secret string) error {
	if secret == "" {
		return core.NewConfigurationError("encryptionKey", "is not set")
	}
	if len(secret) < core.MinSecretLength {
		return core.NewConfigurationError("encryptionKey", fmt.Sprintf("must be at least %d characters", core.MinSecretLength))
	}
	return nil
}

func (enc *Encoder) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(enc.secret, salt, enc.iterations, KeyLength, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}

// Encrypt returns the envelope "salt:iv:tag:ciphertext", every part hex encoded.
func (enc *Encoder) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	aead, err := enc.gcm(salt)
	if err != nil {
		return "", err
	}
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens an envelope produced by Encrypt.
// It fails with ErrMalformedEnvelope when the envelope cannot be parsed and with
// ErrAuthenticationTag when it was tampered with or sealed under another secret.
func (enc *Encoder) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != envelopeParts {
		return "", fmt.Errorf("%w: expected %d parts, got %d", ErrMalformedEnvelope, envelopeParts, len(parts))
	}

	decoded := make([][]byte, envelopeParts)
	for i, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil {
			return "", fmt.Errorf("%w: part %d is not hex", ErrMalformedEnvelope, i+1)
		}
		decoded[i] = b
	}
	salt, iv, tag, ciphertext := decoded[0], decoded[1], decoded[2], decoded[3]
	if len(salt) != SaltSize || len(iv) != IVSize || len(tag) != TagSize {
		return "", fmt.Errorf("%w: unexpected parameter sizes", ErrMalformedEnvelope)
	}

	aead, err := enc.gcm(salt)
	if err != nil {
		return "", err
	}
	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationTag
	}
	return string(plaintext), nil
}

// Hash returns the hex SHA-256 digest of value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// GenerateToken returns byteLength random bytes, hex encoded.
func GenerateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("invalid token length %d", byteLength)
	}
	b := make([]byte, byteLength)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
