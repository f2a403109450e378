package provisioning

import "fmt"

// Opcode identifies a provisioning PDU.
type Opcode uint8

// Provisioning PDU opcodes.
const (
	OpcodeInvite        Opcode = 0x00
	OpcodeCapabilities  Opcode = 0x01
	OpcodeStart         Opcode = 0x02
	OpcodePublicKey     Opcode = 0x03
	OpcodeInputComplete Opcode = 0x04
	OpcodeConfirmation  Opcode = 0x05
	OpcodeRandom        Opcode = 0x06
	OpcodeData          Opcode = 0x07
	OpcodeComplete      Opcode = 0x08
	OpcodeFailed        Opcode = 0x09
)

// opcodeMask strips the two padding bits above the opcode.
const opcodeMask = 0x3F

// payloadSizes holds the fixed payload width of every known opcode.
var payloadSizes = map[Opcode]int{
	OpcodeInvite:        1,
	OpcodeCapabilities:  11,
	OpcodeStart:         5,
	OpcodePublicKey:     PublicKeySize,
	OpcodeInputComplete: 0,
	OpcodeConfirmation:  ConfirmationSize,
	OpcodeRandom:        RandomSize,
	OpcodeData:          ProvisioningDataSize + dataMICSize,
	OpcodeComplete:      0,
	OpcodeFailed:        1,
}

// PayloadSize returns the fixed payload width for op.
func (op Opcode) PayloadSize() (int, bool) {
	n, ok := payloadSizes[op]
	return n, ok
}

// String returns the opcode name.
func (op Opcode) String() string {
	switch op {
	case OpcodeInvite:
		return "Invite"
	case OpcodeCapabilities:
		return "Capabilities"
	case OpcodeStart:
		return "Start"
	case OpcodePublicKey:
		return "PublicKey"
	case OpcodeInputComplete:
		return "InputComplete"
	case OpcodeConfirmation:
		return "Confirmation"
	case OpcodeRandom:
		return "Random"
	case OpcodeData:
		return "Data"
	case OpcodeComplete:
		return "Complete"
	case OpcodeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Opcode(0x%02x)", uint8(op))
	}
}
