package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// Mesh Profile sample data, Section 8.1 (utility functions).
func TestS1(t *testing.T) {
	got := S1([]byte("test"))
	want := "b73cefbd641ef2ea598c2b6efb62f79c"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("s1(\"test\") = %x, want %s", got, want)
	}
}

func TestK1(t *testing.T) {
	n := mustHex(t, "3216d1509884b533248541792b877f98")
	var salt [CMACSize]byte
	copy(salt[:], mustHex(t, "2ba14ffa0df84a2831938d57d276cab4"))
	p := string(mustHex(t, "5a09d60797eeb4478aada59db3352a0d"))

	got := K1(n, salt, p)
	want := "f6ed15a8934afbe7d83e8dcb57fcf5d7"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("k1 = %x, want %s", got, want)
	}
}

func TestK3(t *testing.T) {
	got := K3(mustHex(t, "f7a2a44f8e8a8029064f173ddc1e2b00"))
	want := "ff046958233db014"
	if hex.EncodeToString(got[:]) != want {
		t.Errorf("k3 = %x, want %s", got, want)
	}
}

// Mesh Profile sample data, Section 8.7 (provisioning with no OOB).
var provisioningSample = struct {
	confirmationInputs      string
	ecdhSecret              string
	confirmationSalt        string
	confirmationKey         string
	randomProvisioner       string
	randomDevice            string
	confirmationProvisioner string
	confirmationDevice      string
	provisioningSalt        string
	sessionKey              string
	sessionNonce            string
	deviceKey               string
}{
	confirmationInputs: "00" + "0100010000000000000000" + "0000000000" +
		"2c31a47b5779809ef44cb5eaaf5c3e43d5f8faad4a8794cb987e9b03745c78dd" +
		"919512183898dfbecd52e2408e43871fd021109117bd3ed4eaf8437743715d4f" +
		"f465e43ff23d3f1b9dc7dfc04da8758184dbc966204796eccf0d6cf5e16500cc" +
		"0201d048bcbbd899eeefc424164e33c201c2b010ca6b4d43a8a155cad8ecb279",
	ecdhSecret:              "ab85843a2f6d883f62e5684b38e307335fe6e1945ecd19604105c6f23221eb69",
	confirmationSalt:        "5faabe187337c71cc6c973369dcaa79a",
	confirmationKey:         "e31fe046c68ec339c425fc6629f0336f",
	randomProvisioner:       "8b19ac31d58b124c946209b5db1021b9",
	randomDevice:            "55a2a2bca04cd32ff6f346bd0a0c1a3a",
	confirmationProvisioner: "b38a114dfdca1fe153bd2c1e0dc46ac2",
	confirmationDevice:      "eeba521c196b52cc2e37aa40329f554e",
	provisioningSalt:        "a21c7d45f201cf9489a2fb57145015b4",
	sessionKey:              "c80253af86b33dfa450bbdb2a191fea3",
	sessionNonce:            "da7ddbe78b5f62b81d6847487e",
	deviceKey:               "0520adad5e0142aa3e325087b4ec16d8",
}

func TestProvisioningSampleDerivation(t *testing.T) {
	s := provisioningSample
	inputs := mustHex(t, s.confirmationInputs)
	if len(inputs) != 145 {
		t.Fatalf("confirmation inputs length = %d, want 145", len(inputs))
	}
	secret := mustHex(t, s.ecdhSecret)

	confSalt := S1(inputs)
	if got := hex.EncodeToString(confSalt[:]); got != s.confirmationSalt {
		t.Errorf("ConfirmationSalt = %s, want %s", got, s.confirmationSalt)
	}

	confKey := K1(secret, confSalt, LabelConfirmationKey)
	if got := hex.EncodeToString(confKey[:]); got != s.confirmationKey {
		t.Errorf("ConfirmationKey = %s, want %s", got, s.confirmationKey)
	}

	authValue := make([]byte, 16)
	randP := mustHex(t, s.randomProvisioner)
	randD := mustHex(t, s.randomDevice)

	confP, err := AESCMAC(confKey[:], append(append([]byte{}, randP...), authValue...))
	if err != nil {
		t.Fatalf("AESCMAC failed: %v", err)
	}
	if got := hex.EncodeToString(confP[:]); got != s.confirmationProvisioner {
		t.Errorf("ConfirmationProvisioner = %s, want %s", got, s.confirmationProvisioner)
	}

	confD, err := AESCMAC(confKey[:], append(append([]byte{}, randD...), authValue...))
	if err != nil {
		t.Fatalf("AESCMAC failed: %v", err)
	}
	if got := hex.EncodeToString(confD[:]); got != s.confirmationDevice {
		t.Errorf("ConfirmationDevice = %s, want %s", got, s.confirmationDevice)
	}

	var saltInput []byte
	saltInput = append(saltInput, confSalt[:]...)
	saltInput = append(saltInput, randP...)
	saltInput = append(saltInput, randD...)
	provSalt := S1(saltInput)
	if got := hex.EncodeToString(provSalt[:]); got != s.provisioningSalt {
		t.Errorf("ProvisioningSalt = %s, want %s", got, s.provisioningSalt)
	}

	sessionKey := K1(secret, provSalt, LabelSessionKey)
	if got := hex.EncodeToString(sessionKey[:]); got != s.sessionKey {
		t.Errorf("SessionKey = %s, want %s", got, s.sessionKey)
	}

	nonce := K1(secret, provSalt, LabelSessionNonce)
	if got := hex.EncodeToString(nonce[CMACSize-AESCCMNonceSize:]); got != s.sessionNonce {
		t.Errorf("SessionNonce = %s, want %s", got, s.sessionNonce)
	}

	devKey := K1(secret, provSalt, LabelDeviceKey)
	if got := hex.EncodeToString(devKey[:]); got != s.deviceKey {
		t.Errorf("DeviceKey = %s, want %s", got, s.deviceKey)
	}
}

func TestK1LabelSeparation(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	salt := S1([]byte("salt"))

	a := K1(secret, salt, LabelSessionKey)
	b := K1(secret, salt, LabelSessionNonce)
	if a == b {
		t.Error("k1 produced the same output for different labels")
	}
}
