package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the XChaCha20-Poly1305 nonce size. At 192 bits, random nonces
// do not collide in practice, so no counter state is kept per key.
const NonceSize = chacha20poly1305.NonceSizeX

var (
	ErrInvalidNonce     = errors.New("crypto: invalid nonce size")
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// Encrypt seals plaintext with XChaCha20-Poly1305 under a fresh random nonce.
// The returned ciphertext carries the 16-byte authentication tag.
func Encrypt(key SessionKey, plaintext []byte) ([]byte, [NonceSize]byte, error) {
	var nonce [NonceSize]byte
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, nonce, err
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, nonce, err
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. A tag that does not verify
// (tampering, wrong key or wrong nonce) returns ErrDecryptionFailed.
func Decrypt(key SessionKey, ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidNonce, len(nonce), NonceSize)
	}
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
