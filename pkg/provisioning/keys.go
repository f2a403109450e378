package provisioning

import (
	"fmt"
	"io"

	"github.com/backkem/meshprov/pkg/crypto"
)

// handshake holds the secret material of one provisioning handshake. It is
// owned by a single state machine and wiped when the handshake ends.
type handshake struct {
	inputs ConfirmationInputs

	keyPair   *crypto.P256KeyPair
	localKey  [PublicKeySize]byte
	secret    []byte
	confSalt  [crypto.CMACSize]byte
	confKey   [crypto.CMACSize]byte
	authValue [AuthValueSize]byte

	localRandom       [RandomSize]byte
	peerRandom        [RandomSize]byte
	localConfirmation [ConfirmationSize]byte
	peerConfirmation  [ConfirmationSize]byte

	deviceKey [DeviceKeySize]byte
}

// sessionKeys are the one-time keys protecting the provisioning data.
type sessionKeys struct {
	key   [crypto.AESCCMKeySize]byte
	nonce [crypto.AESCCMNonceSize]byte
}

func (k *sessionKeys) wipe() {
	crypto.Zero(k.key[:])
	crypto.Zero(k.nonce[:])
}

// generateKeyPair installs fixed as the ephemeral key pair, or generates one.
func (h *handshake) generateKeyPair(fixed *crypto.P256KeyPair) error {
	kp := fixed
	if kp == nil {
		var err error
		kp, err = crypto.P256GenerateKeyPair()
		if err != nil {
			return err
		}
	}
	h.keyPair = kp
	h.localKey = kp.RawPublicKey()
	return nil
}

// agree derives the ECDH secret with the peer's key and drops the private key.
func (h *handshake) agree(peer [PublicKeySize]byte) error {
	if crypto.Equal(peer[:], h.localKey[:]) {
		return ErrPublicKeyReflected
	}
	secret, err := h.keyPair.ECDH(peer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	h.secret = secret
	h.keyPair = nil
	return nil
}

// deriveConfirmationKey computes the confirmation salt s1(inputs) and the
// confirmation key k1(secret, salt, "prck").
func (h *handshake) deriveConfirmationKey() error {
	inputs, err := h.inputs.Bytes()
	if err != nil {
		return err
	}
	h.confSalt = crypto.S1(inputs)
	h.confKey = crypto.K1(h.secret, h.confSalt, crypto.LabelConfirmationKey)
	return nil
}

// generateRandom fills the local random value from r.
func (h *handshake) generateRandom(r io.Reader) error {
	_, err := io.ReadFull(r, h.localRandom[:])
	return err
}

// confirmation computes AES-CMAC(confKey, random || authValue).
func (h *handshake) confirmation(random [RandomSize]byte) [ConfirmationSize]byte {
	var msg [RandomSize + AuthValueSize]byte
	copy(msg[:], random[:])
	copy(msg[RandomSize:], h.authValue[:])
	tag, err := crypto.AESCMAC(h.confKey[:], msg[:])
	if err != nil {
		panic(err)
	}
	return tag
}

// checkPeerConfirmation recomputes the peer confirmation from its random.
func (h *handshake) checkPeerConfirmation() error {
	expected := h.confirmation(h.peerRandom)
	if !crypto.Equal(expected[:], h.peerConfirmation[:]) {
		return ErrConfirmationFailed
	}
	return nil
}

// deriveSessionKeys computes the provisioning salt and from it the session
// key, session nonce and device key.
//
//	salt  = s1(ConfirmationSalt || RandomProvisioner || RandomDevice)
//	key   = k1(secret, salt, "prsk")
//	nonce = k1(secret, salt, "prsn")[3:]
//	dev   = k1(secret, salt, "prdk")
//
// The salt input is the confirmation salt, not the provisioner's
// confirmation value, as in the Mesh Profile sample data.
func (h *handshake) deriveSessionKeys(randProvisioner, randDevice [RandomSize]byte) sessionKeys {
	var msg [crypto.CMACSize + 2*RandomSize]byte
	copy(msg[:], h.confSalt[:])
	copy(msg[crypto.CMACSize:], randProvisioner[:])
	copy(msg[crypto.CMACSize+RandomSize:], randDevice[:])
	salt := crypto.S1(msg[:])

	var keys sessionKeys
	keys.key = crypto.K1(h.secret, salt, crypto.LabelSessionKey)
	nonce := crypto.K1(h.secret, salt, crypto.LabelSessionNonce)
	copy(keys.nonce[:], nonce[crypto.CMACSize-crypto.AESCCMNonceSize:])
	crypto.Zero(nonce[:])
	h.deviceKey = crypto.K1(h.secret, salt, crypto.LabelDeviceKey)
	crypto.Zero(salt[:])
	return keys
}

// wipe clears every secret. The device key is cleared too; callers copy it
// out first when the handshake succeeded.
func (h *handshake) wipe() {
	h.inputs.Reset()
	h.keyPair = nil
	crypto.Zero(h.secret)
	h.secret = nil
	crypto.Zero(h.confSalt[:])
	crypto.Zero(h.confKey[:])
	crypto.Zero(h.localRandom[:])
	crypto.Zero(h.peerRandom[:])
	crypto.Zero(h.localConfirmation[:])
	crypto.Zero(h.peerConfirmation[:])
	crypto.Zero(h.deviceKey[:])
}
