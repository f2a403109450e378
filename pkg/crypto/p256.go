package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// P-256 sizes used by mesh provisioning.
const (
	// P256GroupSizeBytes is the size of a scalar or a single coordinate.
	P256GroupSizeBytes = 32

	// P256RawPublicKeySize is the size of a public key on the wire: X || Y.
	P256RawPublicKeySize = 64

	// P256UncompressedPublicKeySize is the SEC1 uncompressed size: 0x04 || X || Y.
	P256UncompressedPublicKeySize = 65

	// ECDHSecretSize is the size of the shared secret (x-coordinate).
	ECDHSecretSize = 32
)

// ErrInvalidPublicKey is returned for points that are malformed or not on the curve.
var ErrInvalidPublicKey = errors.New("p256: invalid public key")

// P256KeyPair is an ephemeral ECDH key pair.
type P256KeyPair struct {
	private *ecdh.PrivateKey
}

// P256GenerateKeyPair generates a new P-256 key pair from crypto/rand.
func P256GenerateKeyPair() (*P256KeyPair, error) {
	return P256GenerateKeyPairFrom(rand.Reader)
}

// P256GenerateKeyPairFrom generates a key pair using r.
func P256GenerateKeyPairFrom(r io.Reader) (*P256KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDH key: %w", err)
	}
	return &P256KeyPair{private: priv}, nil
}

// P256KeyPairFromPrivateKey creates a key pair from an existing private key scalar.
func P256KeyPairFromPrivateKey(privateKey []byte) (*P256KeyPair, error) {
	if len(privateKey) != P256GroupSizeBytes {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", P256GroupSizeBytes, len(privateKey))
	}
	priv, err := ecdh.P256().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &P256KeyPair{private: priv}, nil
}

// RawPublicKey returns the public key as X || Y without the SEC1 prefix.
func (kp *P256KeyPair) RawPublicKey() [P256RawPublicKeySize]byte {
	var raw [P256RawPublicKeySize]byte
	copy(raw[:], kp.private.PublicKey().Bytes()[1:])
	return raw
}

// ECDH computes the shared secret with a peer's raw X || Y public key.
// The point is rebuilt as an uncompressed SEC1 point before import, which
// also validates that it lies on the curve.
func (kp *P256KeyPair) ECDH(peerRaw [P256RawPublicKeySize]byte) ([]byte, error) {
	peer, err := P256PublicKeyFromRaw(peerRaw)
	if err != nil {
		return nil, err
	}
	secret, err := kp.private.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("ECDH computation failed: %w", err)
	}
	return secret, nil
}

// P256PublicKeyFromRaw imports a raw X || Y point.
func P256PublicKeyFromRaw(raw [P256RawPublicKeySize]byte) (*ecdh.PublicKey, error) {
	var uncompressed [P256UncompressedPublicKeySize]byte
	uncompressed[0] = 0x04
	copy(uncompressed[1:], raw[:])

	pub, err := ecdh.P256().NewPublicKey(uncompressed[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}
