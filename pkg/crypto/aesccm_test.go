package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// RFC 3610 test vectors from Section 8.
// https://datatracker.ietf.org/doc/html/rfc3610
//
// These vectors have 13-byte nonces (L=2). The packet in the RFC is
// aad || ciphertext || tag, which is exactly the header variant.
var rfc3610TestVectors = []struct {
	name       string
	key        string
	nonce      string
	aad        string
	plaintext  string
	ciphertext string
	tag        string
	tagSize    int
}{
	{
		name:       "RFC3610_Vector1",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000003020100a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "588c979a61c663d2f066d0c2c0f989806d5f6b61dac384",
		tag:        "17e8d12cfdf926e0",
		tagSize:    8,
	},
	{
		name:       "RFC3610_Vector2",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000004030201a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		ciphertext: "72c91a36e135f8cf291ca894085c87e3cc15c439c9e43a3b",
		tag:        "a091d56e10400916",
		tagSize:    8,
	},
	{
		name:       "RFC3610_Vector7",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000009080706a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "0135d1b2c95f41d5d1d4fec185d166b8094e999dfed96c",
		tag:        "048c56602c97acbb7490",
		tagSize:    10,
	},
}

func TestAESCCMRFC3610Vectors(t *testing.T) {
	for _, tv := range rfc3610TestVectors {
		t.Run(tv.name, func(t *testing.T) {
			ccm, err := NewAESCCMWithParams(mustHex(t, tv.key), 13, tv.tagSize)
			if err != nil {
				t.Fatalf("NewAESCCMWithParams failed: %v", err)
			}
			nonce := mustHex(t, tv.nonce)
			aad := mustHex(t, tv.aad)
			plaintext := mustHex(t, tv.plaintext)

			packet, err := ccm.SealWithHeader(nonce, plaintext, aad)
			if err != nil {
				t.Fatalf("SealWithHeader failed: %v", err)
			}
			want := mustHex(t, tv.aad+tv.ciphertext+tv.tag)
			if !bytes.Equal(packet, want) {
				t.Errorf("packet mismatch\ngot:  %x\nwant: %x", packet, want)
			}

			decrypted, err := ccm.OpenWithHeader(nonce, packet, len(aad))
			if err != nil {
				t.Fatalf("OpenWithHeader failed: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Errorf("decrypted mismatch\ngot:  %x\nwant: %x", decrypted, plaintext)
			}
		})
	}
}

// Mesh Profile sample data 8.7: encryption of the provisioning data.
func TestAESCCMProvisioningData(t *testing.T) {
	key := mustHex(t, provisioningSample.sessionKey)
	nonce := mustHex(t, provisioningSample.sessionNonce)
	data := mustHex(t, "efb2255e6422d330088e09bb015ed707"+"0567"+"00"+"01020304"+"0b0c")

	sealed, err := AESCCMEncrypt(key, nonce, data, nil, ProvisioningMICSize)
	if err != nil {
		t.Fatalf("AESCCMEncrypt failed: %v", err)
	}

	want := mustHex(t, "d0bd7f4a89a2ff6222af59a90a60ad58acfe3123356f5cec29"+"73e0ec50783b10c7")
	if !bytes.Equal(sealed, want) {
		t.Errorf("encrypted provisioning data mismatch\ngot:  %x\nwant: %x", sealed, want)
	}

	opened, err := AESCCMDecrypt(key, nonce, sealed, nil, ProvisioningMICSize)
	if err != nil {
		t.Fatalf("AESCCMDecrypt failed: %v", err)
	}
	if !bytes.Equal(opened, data) {
		t.Errorf("decrypted mismatch\ngot:  %x\nwant: %x", opened, data)
	}
}

func TestNewAESCCM(t *testing.T) {
	key := make([]byte, AESCCMKeySize)
	if _, err := NewAESCCM(key); err != nil {
		t.Errorf("NewAESCCM with valid key failed: %v", err)
	}

	for _, size := range []int{0, 8, 15, 17, 24, 32} {
		_, err := NewAESCCM(make([]byte, size))
		if err != ErrAESCCMInvalidKeySize {
			t.Errorf("NewAESCCM with %d-byte key: got error %v, want ErrAESCCMInvalidKeySize", size, err)
		}
	}

	for _, tagSize := range []int{0, 2, 3, 5, 17, 18} {
		_, err := NewAESCCMWithParams(key, 13, tagSize)
		if err != ErrAESCCMInvalidTagSize {
			t.Errorf("tag size %d: got %v, want ErrAESCCMInvalidTagSize", tagSize, err)
		}
	}

	for _, nonceSize := range []int{6, 14, 15} {
		_, err := NewAESCCMWithParams(key, nonceSize, 8)
		if err != ErrAESCCMInvalidNonceSize {
			t.Errorf("nonce size %d: got %v, want ErrAESCCMInvalidNonceSize", nonceSize, err)
		}
	}
}

func TestAESCCMRoundtripProperty(t *testing.T) {
	key := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	nonce := mustHex(t, "101112131415161718191a1b1c")

	ccm, err := NewAESCCMWithParams(key, 13, 8)
	if err != nil {
		t.Fatalf("NewAESCCMWithParams failed: %v", err)
	}

	for _, aadLen := range []int{0, 10, 300, 70000} {
		aad := make([]byte, aadLen)
		for i := range aad {
			aad[i] = byte(i * 7)
		}
		for ptLen := 0; ptLen <= 256; ptLen++ {
			plaintext := make([]byte, ptLen)
			for i := range plaintext {
				plaintext[i] = byte(i)
			}

			sealed, err := ccm.Seal(nonce, plaintext, aad)
			if err != nil {
				t.Fatalf("aad=%d pt=%d: Seal failed: %v", aadLen, ptLen, err)
			}
			if len(sealed) != ptLen+8 {
				t.Fatalf("aad=%d pt=%d: sealed length = %d", aadLen, ptLen, len(sealed))
			}

			opened, err := ccm.Open(nonce, sealed, aad)
			if err != nil {
				t.Fatalf("aad=%d pt=%d: Open failed: %v", aadLen, ptLen, err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Fatalf("aad=%d pt=%d: roundtrip mismatch", aadLen, ptLen)
			}
		}
	}
}

func TestAESCCMTamper(t *testing.T) {
	key := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	nonce := mustHex(t, "101112131415161718191a1b1c")
	aad := []byte("header")
	plaintext := []byte("network credential payload 25")

	ccm, err := NewAESCCMWithParams(key, 13, 8)
	if err != nil {
		t.Fatalf("NewAESCCMWithParams failed: %v", err)
	}
	sealed, err := ccm.Seal(nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	for i := range sealed {
		tampered := append([]byte{}, sealed...)
		tampered[i] ^= 0x01
		if _, err := ccm.Open(nonce, tampered, aad); err != ErrAESCCMAuthFailed {
			t.Errorf("byte %d flipped: got %v, want ErrAESCCMAuthFailed", i, err)
		}
	}

	badAAD := append([]byte{}, aad...)
	badAAD[0] ^= 0x80
	if _, err := ccm.Open(nonce, sealed, badAAD); err != ErrAESCCMAuthFailed {
		t.Errorf("modified aad: got %v, want ErrAESCCMAuthFailed", err)
	}

	if _, err := ccm.Open(nonce, sealed[:7], aad); err != ErrAESCCMCiphertextTooShort {
		t.Errorf("short ciphertext: got %v, want ErrAESCCMCiphertextTooShort", err)
	}
}

func TestEncodeAADLength(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, ""},
		{1, "0001"},
		{10, "000a"},
		{aadShortLimit - 1, "feff"},
		{aadShortLimit, "fffe0000ff00"},
		{70000, "fffe00011170"},
		{1<<32 - 1, "fffeffffffff"},
		{1 << 32, "ffff0000000100000000"},
	}

	for _, tt := range tests {
		got := hex.EncodeToString(EncodeAADLength(tt.n))
		if got != tt.want {
			t.Errorf("EncodeAADLength(%d) = %s, want %s", tt.n, got, tt.want)
		}
	}
}

func TestAESCCMNonceSizeCheck(t *testing.T) {
	ccm, err := NewAESCCM(make([]byte, AESCCMKeySize))
	if err != nil {
		t.Fatalf("NewAESCCM failed: %v", err)
	}
	if _, err := ccm.Seal(make([]byte, 12), []byte("x"), nil); err != ErrAESCCMInvalidNonceSize {
		t.Errorf("Seal with 12-byte nonce: got %v, want ErrAESCCMInvalidNonceSize", err)
	}
	if _, err := ccm.Open(make([]byte, 12), make([]byte, 16), nil); err != ErrAESCCMInvalidNonceSize {
		t.Errorf("Open with 12-byte nonce: got %v, want ErrAESCCMInvalidNonceSize", err)
	}
}
