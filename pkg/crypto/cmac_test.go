package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// RFC 4493 Section 4 test vectors (NIST SP 800-38B, AES-128).
var rfc4493Key = "2b7e151628aed2a6abf7158809cf4f3c"

var rfc4493TestVectors = []struct {
	name    string
	message string
	tag     string
}{
	{
		name:    "Example1_Empty",
		message: "",
		tag:     "bb1d6929e95937287fa37d129b756746",
	},
	{
		name:    "Example2_16Bytes",
		message: "6bc1bee22e409f96e93d7e117393172a",
		tag:     "070a16b46b4d4144f79bdd9dd04a287c",
	},
	{
		name: "Example3_40Bytes",
		message: "6bc1bee22e409f96e93d7e117393172a" +
			"ae2d8a571e03ac9c9eb76fac45af8e51" +
			"30c81c46a35ce411",
		tag: "dfa66747de9ae63030ca32611497c827",
	},
	{
		name: "Example4_64Bytes",
		message: "6bc1bee22e409f96e93d7e117393172a" +
			"ae2d8a571e03ac9c9eb76fac45af8e51" +
			"30c81c46a35ce411e5fbc1191a0a52ef" +
			"f69f2445df4f9b17ad2b417be66c3710",
		tag: "51f0bebf7e3b9d92fc49741779363cfe",
	},
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

func TestAESCMACSubkeys(t *testing.T) {
	ccm, err := NewAESCCM(mustHex(t, rfc4493Key))
	if err != nil {
		t.Fatalf("NewAESCCM failed: %v", err)
	}

	k1, k2 := cmacSubkeys(ccm.block)

	if got, want := hex.EncodeToString(k1[:]), "fbeed618357133667c85e08f7236a8de"; got != want {
		t.Errorf("K1 = %s, want %s", got, want)
	}
	if got, want := hex.EncodeToString(k2[:]), "f7ddac306ae266ccf90bc11ee46d513b"; got != want {
		t.Errorf("K2 = %s, want %s", got, want)
	}
}

func TestAESCMACVectors(t *testing.T) {
	key := mustHex(t, rfc4493Key)

	for _, tv := range rfc4493TestVectors {
		t.Run(tv.name, func(t *testing.T) {
			tag, err := AESCMAC(key, mustHex(t, tv.message))
			if err != nil {
				t.Fatalf("AESCMAC failed: %v", err)
			}
			want := mustHex(t, tv.tag)
			if !bytes.Equal(tag[:], want) {
				t.Errorf("tag mismatch\ngot:  %x\nwant: %x", tag, want)
			}
		})
	}
}

func TestAESCMACInvalidKey(t *testing.T) {
	for _, size := range []int{0, 15, 17, 32} {
		_, err := AESCMAC(make([]byte, size), []byte("x"))
		if err != ErrCMACInvalidKeySize {
			t.Errorf("AESCMAC with %d-byte key: got %v, want ErrCMACInvalidKeySize", size, err)
		}
	}
}

func TestDbl(t *testing.T) {
	var top [aesBlockSize]byte
	top[0] = 0x80
	got := dbl(top)

	var want [aesBlockSize]byte
	want[aesBlockSize-1] = rb
	if got != want {
		t.Errorf("dbl(0x80..00) = %x, want %x", got, want)
	}

	var low [aesBlockSize]byte
	low[aesBlockSize-1] = 0x01
	got = dbl(low)
	want = [aesBlockSize]byte{}
	want[aesBlockSize-1] = 0x02
	if got != want {
		t.Errorf("dbl(0x00..01) = %x, want %x", got, want)
	}
}
