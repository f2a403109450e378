package crypto

// Key derivation labels used during provisioning.
const (
	LabelConfirmationKey = "prck"
	LabelSessionKey      = "prsk"
	LabelSessionNonce    = "prsn"
	LabelDeviceKey       = "prdk"
)

var zeroKey [AESCCMKeySize]byte

// S1 is the mesh salt generation function: AES-CMAC with a zero key.
func S1(message []byte) [CMACSize]byte {
	return mustCMAC(zeroKey[:], message)
}

// K1 is the mesh key derivation function:
//
//	T  = AES-CMAC(salt, secret)
//	k1 = AES-CMAC(T, label)
//
// salt is always 16 bytes (an S1 output).
func K1(secret []byte, salt [CMACSize]byte, label string) [CMACSize]byte {
	t := mustCMAC(salt[:], secret)
	defer Zero(t[:])
	return mustCMAC(t[:], []byte(label))
}

// NetworkIDSize is the length of a network identifier.
const NetworkIDSize = 8

// K3 derives the 64-bit network identifier from a network key:
//
//	T  = AES-CMAC(s1("smk3"), N)
//	k3 = AES-CMAC(T, "id64" || 0x01) mod 2^64
func K3(netKey []byte) [NetworkIDSize]byte {
	salt := S1([]byte("smk3"))
	t := mustCMAC(salt[:], netKey)
	defer Zero(t[:])
	full := mustCMAC(t[:], []byte{'i', 'd', '6', '4', 0x01})

	var id [NetworkIDSize]byte
	copy(id[:], full[CMACSize-NetworkIDSize:])
	return id
}
