// AES-CCM implementation for mesh provisioning.
// This implements AES-128-CCM as defined in NIST 800-38C and RFC 3610.
// The mesh profile uses AES-CCM with:
//   - Key length: 128 bits (16 bytes)
//   - MIC length: 64 bits (8 bytes) for provisioning data
//   - Nonce length: 13 bytes
//   - L = 2 (length field size)

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// AES-CCM constants used by mesh provisioning.
const (
	// AESCCMKeySize is the AES-128 key size in bytes.
	AESCCMKeySize = 16

	// AESCCMNonceSize is the nonce size in bytes used for session data.
	AESCCMNonceSize = 13

	// ProvisioningMICSize is the MIC size of the encrypted provisioning data.
	ProvisioningMICSize = 8

	// aesBlockSize is the AES block size (always 16 bytes).
	aesBlockSize = 16

	// aadShortLimit is 2^16 - 2^8, the first AAD length needing the 0xFFFE form.
	aadShortLimit = (1 << 16) - (1 << 8)
)

// Errors
var (
	ErrAESCCMInvalidKeySize     = errors.New("aesccm: invalid key size, must be 16 bytes")
	ErrAESCCMInvalidNonceSize   = errors.New("aesccm: invalid nonce size")
	ErrAESCCMInvalidTagSize     = errors.New("aesccm: invalid tag size, must be 4, 6, 8, 10, 12, 14, or 16")
	ErrAESCCMPlaintextTooLong   = errors.New("aesccm: plaintext too long")
	ErrAESCCMCiphertextTooShort = errors.New("aesccm: ciphertext too short")
	ErrAESCCMAuthFailed         = errors.New("aesccm: message authentication failed")
)

// AESCCM represents an AES-128-CCM cipher instance with configurable parameters.
type AESCCM struct {
	block   cipher.Block
	tagSize int // M: authentication tag size (4, 6, 8, 10, 12, 14, or 16)
	lenSize int // L: length field size (15 - nonceSize)
}

// NewAESCCM creates a cipher with the parameters mesh uses for provisioning
// data: a 13-byte nonce and an 8-byte MIC.
func NewAESCCM(key []byte) (*AESCCM, error) {
	return NewAESCCMWithParams(key, AESCCMNonceSize, ProvisioningMICSize)
}

// NewAESCCMWithParams creates a new AES-128-CCM cipher with configurable parameters.
//
// Parameters:
//   - key: 16-byte AES-128 key
//   - nonceSize: nonce length in bytes (7-13 per NIST 800-38C)
//   - tagSize: authentication tag length in bytes (4, 6, 8, 10, 12, 14, or 16)
func NewAESCCMWithParams(key []byte, nonceSize, tagSize int) (*AESCCM, error) {
	if len(key) != AESCCMKeySize {
		return nil, ErrAESCCMInvalidKeySize
	}

	// L = 15 - n, where 2 <= L <= 8
	lenSize := 15 - nonceSize
	if lenSize < 2 || lenSize > 8 {
		return nil, ErrAESCCMInvalidNonceSize
	}

	if tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return nil, ErrAESCCMInvalidTagSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &AESCCM{
		block:   block,
		tagSize: tagSize,
		lenSize: lenSize,
	}, nil
}

// NonceSize returns the required nonce size for this cipher.
func (c *AESCCM) NonceSize() int {
	return 15 - c.lenSize
}

// TagSize returns the authentication tag size for this cipher.
func (c *AESCCM) TagSize() int {
	return c.tagSize
}

// Seal encrypts and authenticates plaintext with associated data.
// Returns ciphertext || tag. The associated data is not part of the output.
func (c *AESCCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if c.lenSize < 8 && uint64(len(plaintext)) >= uint64(1)<<(8*c.lenSize) {
		return nil, ErrAESCCMPlaintextTooLong
	}

	tag := c.computeTag(nonce, plaintext, aad)

	ciphertext := make([]byte, len(plaintext)+c.tagSize)

	// The tag is encrypted with S_0, the payload with S_1 onwards.
	s0 := c.generateS0(nonce)
	subtle.XORBytes(ciphertext[len(plaintext):], tag, s0[:c.tagSize])
	c.ctrEncrypt(nonce, ciphertext[:len(plaintext)], plaintext)

	return ciphertext, nil
}

// Open decrypts and verifies ciphertext || tag with associated data.
// Returns ErrAESCCMAuthFailed if the tag does not verify; no plaintext is
// returned in that case.
func (c *AESCCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if len(ciphertext) < c.tagSize {
		return nil, ErrAESCCMCiphertextTooShort
	}

	encryptedData := ciphertext[:len(ciphertext)-c.tagSize]
	encryptedTag := ciphertext[len(ciphertext)-c.tagSize:]

	s0 := c.generateS0(nonce)
	receivedTag := make([]byte, c.tagSize)
	subtle.XORBytes(receivedTag, encryptedTag, s0[:c.tagSize])

	plaintext := make([]byte, len(encryptedData))
	c.ctrEncrypt(nonce, plaintext, encryptedData)

	expectedTag := c.computeTag(nonce, plaintext, aad)

	if subtle.ConstantTimeCompare(receivedTag, expectedTag) != 1 {
		Zero(plaintext)
		return nil, ErrAESCCMAuthFailed
	}

	return plaintext, nil
}

// SealWithHeader is Seal with the associated data prepended to the output:
// aad || ciphertext || tag.
func (c *AESCCM) SealWithHeader(nonce, plaintext, aad []byte) ([]byte, error) {
	sealed, err := c.Seal(nonce, plaintext, aad)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(aad)+len(sealed))
	out = append(out, aad...)
	return append(out, sealed...), nil
}

// OpenWithHeader reverses SealWithHeader. headerLen is the length of the
// associated data at the start of msg.
func (c *AESCCM) OpenWithHeader(nonce, msg []byte, headerLen int) ([]byte, error) {
	if headerLen < 0 || len(msg) < headerLen+c.tagSize {
		return nil, ErrAESCCMCiphertextTooShort
	}
	return c.Open(nonce, msg[headerLen:], msg[:headerLen])
}

// computeTag computes the CBC-MAC authentication tag, truncated to tagSize.
// This follows NIST 800-38C Section 6.1 and RFC 3610 Section 2.2.
func (c *AESCCM) computeTag(nonce, plaintext, aad []byte) []byte {
	// Flags = Reserved(1) || Adata(1) || M'(3) || L'(3)
	var b0 [aesBlockSize]byte
	flags := byte(0)
	if len(aad) > 0 {
		flags |= 1 << 6
	}
	flags |= byte((c.tagSize-2)/2) << 3
	flags |= byte(c.lenSize - 1)

	b0[0] = flags
	nonceSize := c.NonceSize()
	copy(b0[1:1+nonceSize], nonce)
	putLength(b0[1+nonceSize:], uint64(len(plaintext)))

	mac := make([]byte, aesBlockSize)
	c.block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		header := EncodeAADLength(uint64(len(aad)))
		c.cbcMAC(mac, append(header, aad...))
	}
	c.cbcMAC(mac, plaintext)

	return mac[:c.tagSize]
}

// cbcMAC folds data into mac, zero padding the final block.
func (c *AESCCM) cbcMAC(mac, data []byte) {
	for len(data) > 0 {
		var block [aesBlockSize]byte
		n := copy(block[:], data)
		data = data[n:]

		subtle.XORBytes(mac, mac, block[:])
		c.block.Encrypt(mac, mac)
	}
}

// EncodeAADLength returns the CCM length field for n bytes of associated
// data:
//
//	0 < n < 2^16-2^8     2-byte big-endian length
//	2^16-2^8 <= n < 2^32 0xFF 0xFE then a 4-byte length
//	n >= 2^32            0xFF 0xFF then an 8-byte length
//
// It returns nil for n == 0; the field is omitted when there is no
// associated data.
func EncodeAADLength(n uint64) []byte {
	switch {
	case n == 0:
		return nil
	case n < aadShortLimit:
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(n))
		return out
	case n < 1<<32:
		out := make([]byte, 6)
		out[0], out[1] = 0xFF, 0xFE
		binary.BigEndian.PutUint32(out[2:], uint32(n))
		return out
	default:
		out := make([]byte, 10)
		out[0], out[1] = 0xFF, 0xFF
		binary.BigEndian.PutUint64(out[2:], n)
		return out
	}
}

// generateS0 generates the S_0 keystream block for tag encryption.
// S_0 = E(K, A_0) where A_0 is the first counter block with counter = 0.
func (c *AESCCM) generateS0(nonce []byte) []byte {
	var a0 [aesBlockSize]byte
	a0[0] = byte(c.lenSize - 1)
	copy(a0[1:1+c.NonceSize()], nonce)

	s0 := make([]byte, aesBlockSize)
	c.block.Encrypt(s0, a0[:])
	return s0
}

// ctrEncrypt encrypts/decrypts data using CTR mode starting from counter 1.
func (c *AESCCM) ctrEncrypt(nonce []byte, dst, src []byte) {
	var ctr [aesBlockSize]byte
	ctr[0] = byte(c.lenSize - 1)
	copy(ctr[1:1+c.NonceSize()], nonce)
	ctr[aesBlockSize-1] = 1

	var keystream [aesBlockSize]byte
	for i := 0; i < len(src); i += aesBlockSize {
		c.block.Encrypt(keystream[:], ctr[:])

		end := min(i+aesBlockSize, len(src))
		subtle.XORBytes(dst[i:end], src[i:end], keystream[:end-i])

		incrementCounter(ctr[aesBlockSize-c.lenSize:])
	}
}

// putLength encodes length into dst as a big-endian value of len(dst) bytes.
func putLength(dst []byte, length uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(length)
		length >>= 8
	}
}

// incrementCounter increments a big-endian counter.
func incrementCounter(ctr []byte) {
	for i := len(ctr) - 1; i >= 0; i-- {
		ctr[i]++
		if ctr[i] != 0 {
			break
		}
	}
}

// AESCCMEncrypt seals plaintext under key and a 13-byte nonce with the given
// MIC size and no header in the output.
func AESCCMEncrypt(key, nonce, plaintext, aad []byte, micSize int) ([]byte, error) {
	ccm, err := NewAESCCMWithParams(key, len(nonce), micSize)
	if err != nil {
		return nil, err
	}
	return ccm.Seal(nonce, plaintext, aad)
}

// AESCCMDecrypt reverses AESCCMEncrypt.
func AESCCMDecrypt(key, nonce, ciphertext, aad []byte, micSize int) ([]byte, error) {
	ccm, err := NewAESCCMWithParams(key, len(nonce), micSize)
	if err != nil {
		return nil, err
	}
	return ccm.Open(nonce, ciphertext, aad)
}
