package session

import (
	"errors"
	"fmt"

	"github.com/TheusHen/p2pchat/peerchat/crypto"
)

var (
	ErrUnsupportedCipher = errors.New("session: unsupported cipher")
)

// Cipher selects the AEAD a Session uses.
type Cipher uint8

const (
	CipherXChaCha20Poly1305 Cipher = iota + 1
	// CipherAES256GCM is reserved. New rejects it.
	CipherAES256GCM
)

func (c Cipher) String() string {
	switch c {
	case CipherXChaCha20Poly1305:
		return "xchacha20-poly1305"
	case CipherAES256GCM:
		return "aes-256-gcm"
	default:
		return "unknown"
	}
}

// ParseCipher maps a configuration name to a Cipher.
func ParseCipher(name string) (Cipher, error) {
	switch name {
	case "", CipherXChaCha20Poly1305.String():
		return CipherXChaCha20Poly1305, nil
	case CipherAES256GCM.String():
		return CipherAES256GCM, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCipher, name)
	}
}

// Session is an established encrypted channel between two peers.
// It is immutable; concurrent Encrypt and Decrypt calls need no locking.
type Session struct {
	key          crypto.SessionKey
	cipher       Cipher
	localPublic  crypto.PublicKey
	remotePublic crypto.PublicKey
}

// New builds a Session over key. Ciphers without an implementation are
// rejected here rather than on first use.
func New(key crypto.SessionKey, cipher Cipher) (*Session, error) {
	if cipher != CipherXChaCha20Poly1305 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCipher, cipher)
	}
	return &Session{key: key, cipher: cipher}, nil
}

func (s *Session) Cipher() Cipher { return s.cipher }

func (s *Session) LocalPublic() crypto.PublicKey { return s.localPublic }

func (s *Session) RemotePublic() crypto.PublicKey { return s.remotePublic }

// Fingerprint identifies this exchange; both peers compute the same value.
func (s *Session) Fingerprint() string {
	return crypto.SessionFingerprint(s.localPublic, s.remotePublic)
}

// Encrypt seals plaintext and returns the ciphertext and its nonce.
func (s *Session) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	ct, nonce, err := crypto.Encrypt(s.key, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return ct, nonce[:], nil
}

// Decrypt opens ciphertext sealed by the peer's Session.
func (s *Session) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	return crypto.Decrypt(s.key, ciphertext, nonce)
}
