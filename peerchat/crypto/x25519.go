package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/curve25519"
)

const (
	PublicKeySize = 32
	KeySize       = 32
)

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")
	ErrKeyConsumed      = errors.New("crypto: ephemeral private key already used")
)

// PublicKey is an X25519 public point.
type PublicKey [PublicKeySize]byte

// SessionKey is the symmetric key both peers derive from one exchange.
type SessionKey [KeySize]byte

// KeyPair is an ephemeral X25519 keypair. The private scalar can be used for
// exactly one Diffie-Hellman computation and is wiped afterwards.
type KeyPair struct {
	Public PublicKey

	mu      sync.Mutex
	private [32]byte
	used    bool
}

// GenerateKeyPair creates a fresh ephemeral keypair from crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if _, err := io.ReadFull(rand.Reader, kp.private[:]); err != nil {
		return nil, err
	}
	// Clamp private key per RFC 7748
	kp.private[0] &= 248
	kp.private[31] &= 127
	kp.private[31] |= 64

	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// SharedKey consumes the private half and derives the session key shared with
// the owner of peer. A second call fails with ErrKeyConsumed.
func (kp *KeyPair) SharedKey(peer PublicKey) (SessionKey, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if kp.used {
		return SessionKey{}, ErrKeyConsumed
	}
	kp.used = true
	defer Wipe(kp.private[:])
	return DeriveSharedKey(kp.private, peer)
}

// DeriveSharedKey computes X25519(private, peer) and hashes the shared point
// with SHA-256. Both sides of an exchange arrive at the same key.
func DeriveSharedKey(private [32]byte, peer PublicKey) (SessionKey, error) {
	var zero PublicKey
	if subtle.ConstantTimeCompare(peer[:], zero[:]) == 1 {
		return SessionKey{}, ErrInvalidPublicKey
	}
	// X25519 rejects low-order points whose output is all zeros.
	shared, err := curve25519.X25519(private[:], peer[:])
	if err != nil {
		return SessionKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	defer Wipe(shared)
	return SessionKey(sha256.Sum256(shared)), nil
}

// EncodePublicKey returns the standard base64 form of pub.
func EncodePublicKey(pub PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub[:])
}

// DecodePublicKey parses the base64 form produced by EncodePublicKey. Input
// that is not valid base64 or does not hold exactly 32 bytes is rejected.
func DecodePublicKey(s string) (PublicKey, error) {
	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPublicKey, len(b), PublicKeySize)
	}
	var pub PublicKey
	copy(pub[:], b)
	return pub, nil
}
