package provisioning

import (
	"fmt"

	"github.com/backkem/meshprov/pkg/proxy"
	"golang.org/x/crypto/cryptobyte"
)

// PDU is a typed provisioning message with a fixed-width payload.
type PDU interface {
	Opcode() Opcode
	marshal(b *cryptobyte.Builder)
}

// Invite asks the device to start provisioning.
type Invite struct {
	AttentionDuration uint8
}

// Capabilities describes what the device supports.
type Capabilities struct {
	Elements        uint8
	Algorithms      uint16
	PublicKeyType   uint8
	StaticOOBType   uint8
	OutputOOBSize   uint8
	OutputOOBAction uint16
	InputOOBSize    uint8
	InputOOBAction  uint16
}

// Start selects the algorithm and authentication for the handshake.
type Start struct {
	Algorithm  uint8
	PublicKey  uint8
	AuthMethod uint8
	AuthAction uint8
	AuthSize   uint8
}

// PublicKey carries a raw P-256 point.
type PublicKey struct {
	Key [PublicKeySize]byte
}

// X returns the X coordinate.
func (p *PublicKey) X() []byte { return p.Key[:PublicKeySize/2] }

// Y returns the Y coordinate.
func (p *PublicKey) Y() []byte { return p.Key[PublicKeySize/2:] }

// InputComplete signals completion of input OOB.
type InputComplete struct{}

// Confirmation carries a confirmation value.
type Confirmation struct {
	Value [ConfirmationSize]byte
}

// Random carries a random value.
type Random struct {
	Value [RandomSize]byte
}

// Data carries the encrypted provisioning data and its MIC.
type Data struct {
	Encrypted [ProvisioningDataSize]byte
	MIC       [dataMICSize]byte
}

// Complete signals that the device accepted the provisioning data.
type Complete struct{}

// Failed reports a provisioning error.
type Failed struct {
	Code ErrorCode
}

func (*Invite) Opcode() Opcode        { return OpcodeInvite }
func (*Capabilities) Opcode() Opcode  { return OpcodeCapabilities }
func (*Start) Opcode() Opcode         { return OpcodeStart }
func (*PublicKey) Opcode() Opcode     { return OpcodePublicKey }
func (*InputComplete) Opcode() Opcode { return OpcodeInputComplete }
func (*Confirmation) Opcode() Opcode  { return OpcodeConfirmation }
func (*Random) Opcode() Opcode        { return OpcodeRandom }
func (*Data) Opcode() Opcode          { return OpcodeData }
func (*Complete) Opcode() Opcode      { return OpcodeComplete }
func (*Failed) Opcode() Opcode        { return OpcodeFailed }

func (m *Invite) marshal(b *cryptobyte.Builder) {
	b.AddUint8(m.AttentionDuration)
}

func (m *Capabilities) marshal(b *cryptobyte.Builder) {
	b.AddUint8(m.Elements)
	b.AddUint16(m.Algorithms)
	b.AddUint8(m.PublicKeyType)
	b.AddUint8(m.StaticOOBType)
	b.AddUint8(m.OutputOOBSize)
	b.AddUint16(m.OutputOOBAction)
	b.AddUint8(m.InputOOBSize)
	b.AddUint16(m.InputOOBAction)
}

func (m *Start) marshal(b *cryptobyte.Builder) {
	b.AddUint8(m.Algorithm)
	b.AddUint8(m.PublicKey)
	b.AddUint8(m.AuthMethod)
	b.AddUint8(m.AuthAction)
	b.AddUint8(m.AuthSize)
}

func (m *PublicKey) marshal(b *cryptobyte.Builder)    { b.AddBytes(m.Key[:]) }
func (*InputComplete) marshal(*cryptobyte.Builder)    {}
func (m *Confirmation) marshal(b *cryptobyte.Builder) { b.AddBytes(m.Value[:]) }
func (m *Random) marshal(b *cryptobyte.Builder)       { b.AddBytes(m.Value[:]) }
func (*Complete) marshal(*cryptobyte.Builder)         {}
func (m *Failed) marshal(b *cryptobyte.Builder)       { b.AddUint8(uint8(m.Code)) }

func (m *Data) marshal(b *cryptobyte.Builder) {
	b.AddBytes(m.Encrypted[:])
	b.AddBytes(m.MIC[:])
}

// EncodePayload serializes the payload of p without its opcode. This is the
// form appended to the confirmation inputs.
func EncodePayload(p PDU) []byte {
	size, _ := p.Opcode().PayloadSize()
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, size))
	p.marshal(b)
	return b.BytesOrPanic()
}

// Encode serializes p as opcode || payload.
func Encode(p PDU) []byte {
	size, _ := p.Opcode().PayloadSize()
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, 1+size))
	b.AddUint8(uint8(p.Opcode()))
	p.marshal(b)
	return b.BytesOrPanic()
}

// EncodeFrame serializes p as a complete proxy PDU of message type
// provisioning.
func EncodeFrame(p PDU) []byte {
	frame, err := proxy.EncodeFrame(proxy.MessageTypeProvisioning, Encode(p))
	if err != nil {
		panic(err)
	}
	return frame
}

// DecodeFrame validates the proxy header and decodes the provisioning PDU.
func DecodeFrame(frame []byte) (PDU, error) {
	payload, err := proxy.DecodeFrame(frame, proxy.MessageTypeProvisioning)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPDU, err)
	}
	return Decode(payload)
}

// Decode parses opcode || payload. The payload must have exactly the width
// documented for the opcode.
func Decode(data []byte) (PDU, error) {
	s := cryptobyte.String(data)

	var raw uint8
	if !s.ReadUint8(&raw) {
		return nil, fmt.Errorf("%w: missing opcode", ErrInvalidPDU)
	}
	op := Opcode(raw & opcodeMask)

	size, ok := op.PayloadSize()
	if !ok {
		return nil, fmt.Errorf("%w: unknown opcode 0x%02x", ErrInvalidPDU, raw)
	}
	if len(s) < size {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrInvalidPDU, op, len(s), size)
	}
	if len(s) > size {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrInvalidFormat, op, len(s), size)
	}

	var (
		pdu    PDU
		parsed bool
	)
	switch op {
	case OpcodeInvite:
		m := &Invite{}
		parsed = s.ReadUint8(&m.AttentionDuration)
		pdu = m
	case OpcodeCapabilities:
		m := &Capabilities{}
		parsed = s.ReadUint8(&m.Elements) &&
			s.ReadUint16(&m.Algorithms) &&
			s.ReadUint8(&m.PublicKeyType) &&
			s.ReadUint8(&m.StaticOOBType) &&
			s.ReadUint8(&m.OutputOOBSize) &&
			s.ReadUint16(&m.OutputOOBAction) &&
			s.ReadUint8(&m.InputOOBSize) &&
			s.ReadUint16(&m.InputOOBAction)
		pdu = m
	case OpcodeStart:
		m := &Start{}
		parsed = s.ReadUint8(&m.Algorithm) &&
			s.ReadUint8(&m.PublicKey) &&
			s.ReadUint8(&m.AuthMethod) &&
			s.ReadUint8(&m.AuthAction) &&
			s.ReadUint8(&m.AuthSize)
		pdu = m
	case OpcodePublicKey:
		m := &PublicKey{}
		parsed = s.CopyBytes(m.Key[:])
		pdu = m
	case OpcodeInputComplete:
		pdu, parsed = &InputComplete{}, true
	case OpcodeConfirmation:
		m := &Confirmation{}
		parsed = s.CopyBytes(m.Value[:])
		pdu = m
	case OpcodeRandom:
		m := &Random{}
		parsed = s.CopyBytes(m.Value[:])
		pdu = m
	case OpcodeData:
		m := &Data{}
		parsed = s.CopyBytes(m.Encrypted[:]) && s.CopyBytes(m.MIC[:])
		pdu = m
	case OpcodeComplete:
		pdu, parsed = &Complete{}, true
	case OpcodeFailed:
		var code uint8
		parsed = s.ReadUint8(&code)
		pdu = &Failed{Code: ErrorCode(code)}
	}

	if !parsed || !s.Empty() {
		return nil, fmt.Errorf("%w: malformed %s", ErrInvalidFormat, op)
	}
	return pdu, nil
}
