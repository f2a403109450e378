package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

// CMACSize is the AES-CMAC tag size in bytes.
const CMACSize = 16

// rb is the GF(2^128) reduction constant used for subkey doubling (RFC 4493).
const rb = 0x87

// ErrCMACInvalidKeySize is returned for keys that are not AES-128 keys.
var ErrCMACInvalidKeySize = errors.New("cmac: invalid key size, must be 16 bytes")

// AESCMAC computes AES-CMAC (RFC 4493) of message under a 16-byte key.
//
// The mesh profile never MACs an empty message; an empty message is still
// handled per RFC 4493 (one padded block under K2).
func AESCMAC(key, message []byte) ([CMACSize]byte, error) {
	var tag [CMACSize]byte
	if len(key) != AESCCMKeySize {
		return tag, ErrCMACInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return tag, err
	}
	cmac(block, tag[:], message)
	return tag, nil
}

// mustCMAC is AESCMAC for keys that are known to be 16 bytes.
func mustCMAC(key, message []byte) [CMACSize]byte {
	tag, err := AESCMAC(key, message)
	if err != nil {
		panic(err)
	}
	return tag
}

// cmacSubkeys derives K1 and K2 from L = E(K, 0^128).
func cmacSubkeys(block cipher.Block) (k1, k2 [aesBlockSize]byte) {
	var l [aesBlockSize]byte
	block.Encrypt(l[:], l[:])
	k1 = dbl(l)
	k2 = dbl(k1)
	return k1, k2
}

// dbl multiplies b by x in GF(2^128): shift left one bit and, if the top
// bit was set, XOR the last byte with rb.
func dbl(b [aesBlockSize]byte) [aesBlockSize]byte {
	var out [aesBlockSize]byte
	carry := b[0] >> 7
	for i := 0; i < aesBlockSize-1; i++ {
		out[i] = b[i]<<1 | b[i+1]>>7
	}
	out[aesBlockSize-1] = b[aesBlockSize-1] << 1
	out[aesBlockSize-1] ^= byte(subtle.ConstantTimeSelect(int(carry), rb, 0))
	return out
}

func cmac(block cipher.Block, dst, message []byte) {
	k1, k2 := cmacSubkeys(block)

	n := (len(message) + aesBlockSize - 1) / aesBlockSize
	complete := n > 0 && len(message)%aesBlockSize == 0
	if n == 0 {
		n = 1
	}

	// Last block: XOR with K1 when complete, else pad 0x80 0x00... and XOR K2.
	var last [aesBlockSize]byte
	tail := message[(n-1)*aesBlockSize:]
	if complete {
		subtle.XORBytes(last[:], tail, k1[:])
	} else {
		copy(last[:], tail)
		last[len(tail)] = 0x80
		subtle.XORBytes(last[:], last[:], k2[:])
	}

	var x [aesBlockSize]byte
	for i := 0; i < n-1; i++ {
		subtle.XORBytes(x[:], x[:], message[i*aesBlockSize:(i+1)*aesBlockSize])
		block.Encrypt(x[:], x[:])
	}
	subtle.XORBytes(x[:], x[:], last[:])
	block.Encrypt(x[:], x[:])

	copy(dst, x[:])
}
