package provisioning

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	// ProvisioningDataSize is the size of the unencrypted provisioning data.
	ProvisioningDataSize = 25

	// dataMICSize is the size of the MIC appended to the encrypted data.
	dataMICSize = 8

	// NetKeySize is the size of a network key.
	NetKeySize = 16

	maxKeyIndex       = 0x0FFF
	maxUnicastAddress = 0x7FFF
)

// Provisioning data flags.
const (
	FlagKeyRefresh uint8 = 1 << 0
	FlagIVUpdate   uint8 = 1 << 1
)

// ProvisioningData is the network credential delivered to the device:
//
//	NetKey(16) || KeyIndex(2) || Flags(1) || IVIndex(4) || UnicastAddress(2)
//
// Multi-byte fields are big-endian.
type ProvisioningData struct {
	NetKey         [NetKeySize]byte
	KeyIndex       uint16
	Flags          uint8
	IVIndex        uint32
	UnicastAddress uint16
}

// Encode serializes the provisioning data.
func (d *ProvisioningData) Encode() []byte {
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, ProvisioningDataSize))
	b.AddBytes(d.NetKey[:])
	b.AddUint16(d.KeyIndex)
	b.AddUint8(d.Flags)
	b.AddUint32(d.IVIndex)
	b.AddUint16(d.UnicastAddress)
	return b.BytesOrPanic()
}

// Validate checks field ranges: a 12-bit key index, known flags only, and a
// non-zero unicast address.
func (d *ProvisioningData) Validate() error {
	if d.KeyIndex > maxKeyIndex {
		return fmt.Errorf("%w: key index 0x%04x out of range", ErrInvalidData, d.KeyIndex)
	}
	if d.Flags&^(FlagKeyRefresh|FlagIVUpdate) != 0 {
		return fmt.Errorf("%w: reserved flags 0x%02x", ErrInvalidData, d.Flags)
	}
	if d.UnicastAddress == 0 || d.UnicastAddress > maxUnicastAddress {
		return fmt.Errorf("%w: 0x%04x is not a unicast address", ErrInvalidData, d.UnicastAddress)
	}
	return nil
}

// DecodeProvisioningData parses decrypted provisioning data.
func DecodeProvisioningData(data []byte) (ProvisioningData, error) {
	var d ProvisioningData
	if len(data) != ProvisioningDataSize {
		return d, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidData, len(data), ProvisioningDataSize)
	}
	s := cryptobyte.String(data)
	if !s.CopyBytes(d.NetKey[:]) ||
		!s.ReadUint16(&d.KeyIndex) ||
		!s.ReadUint8(&d.Flags) ||
		!s.ReadUint32(&d.IVIndex) ||
		!s.ReadUint16(&d.UnicastAddress) {
		return d, fmt.Errorf("%w: malformed", ErrInvalidData)
	}
	return d, nil
}
