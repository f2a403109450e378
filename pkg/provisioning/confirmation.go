package provisioning

import "fmt"

// ConfirmationInputsSize is the size of the complete confirmation inputs.
const ConfirmationInputsSize = 1 + 11 + 5 + PublicKeySize + PublicKeySize

// InputField names one field of the confirmation inputs, in handshake order.
type InputField int

const (
	InputInvite InputField = iota
	InputCapabilities
	InputStart
	InputProvisionerKey
	InputDeviceKey
	inputFieldCount
)

var inputFieldSizes = [inputFieldCount]int{1, 11, 5, PublicKeySize, PublicKeySize}

func (f InputField) String() string {
	switch f {
	case InputInvite:
		return "Invite"
	case InputCapabilities:
		return "Capabilities"
	case InputStart:
		return "Start"
	case InputProvisionerKey:
		return "ProvisionerPublicKey"
	case InputDeviceKey:
		return "DevicePublicKey"
	default:
		return fmt.Sprintf("InputField(%d)", int(f))
	}
}

// ConfirmationInputs accumulates the handshake transcript that is salted
// into the confirmation key:
//
//	Invite(1) || Capabilities(11) || Start(5) || ProvisionerKey(64) || DeviceKey(64)
//
// Each field is written exactly once, in order. Bytes fails until every
// field has been written.
type ConfirmationInputs struct {
	buf  [ConfirmationInputsSize]byte
	n    int
	next InputField
}

// Write appends field. It fails if field is not the next one expected or
// data has the wrong width.
func (c *ConfirmationInputs) Write(field InputField, data []byte) error {
	if field != c.next || c.next >= inputFieldCount {
		return fmt.Errorf("%w: got %s, want %s", ErrInputsOrder, field, c.next)
	}
	if len(data) != inputFieldSizes[field] {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrInvalidFormat, field, len(data), inputFieldSizes[field])
	}
	c.n += copy(c.buf[c.n:], data)
	c.next++
	return nil
}

// Complete reports whether all fields have been written.
func (c *ConfirmationInputs) Complete() bool {
	return c.next == inputFieldCount
}

// Bytes returns the complete inputs.
func (c *ConfirmationInputs) Bytes() ([]byte, error) {
	if !c.Complete() {
		return nil, fmt.Errorf("%w: next field %s", ErrInputsIncomplete, c.next)
	}
	return c.buf[:], nil
}

// Reset clears the buffer.
func (c *ConfirmationInputs) Reset() {
	clear(c.buf[:])
	c.n = 0
	c.next = InputInvite
}
