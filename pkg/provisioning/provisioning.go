// Package provisioning implements the mesh provisioning protocol: the PDU
// codec and the handshake state machines for both roles.
//
// # Protocol Flow
//
//	Provisioner                               Device
//	-----------                               ------
//	Start()            Invite        ------>
//	                   <------        Capabilities
//	Feed(caps)         Start         ------>
//	                   PublicKey     ------>
//	                   <------        PublicKey
//	Feed(pub)          Confirmation  ------>
//	                   <------        Confirmation
//	Feed(conf)         Random        ------>
//	                   <------        Random
//	Feed(random)       Data          ------>
//	                   <------        Complete | Failed
//	Feed(complete)     Complete
//
// Both state machines are driven by Feed: one inbound frame in, a Transition
// with the outbound frames to send out. Neither touches the transport.
//
// # Usage
//
//	p := provisioning.NewProvisioner(provisioning.ProvisionerConfig{Data: data})
//	tr, _ := p.Start()
//	// send tr.Frames, then for each received frame:
//	tr, err = p.Feed(frame)
//	// send tr.Frames, repeat until tr.To.Terminal()
//	result, _ := p.Result()
package provisioning

import (
	"errors"
	"fmt"
)

// Protocol constants.
const (
	// RandomSize is the size of the provisioner and device random values.
	RandomSize = 16

	// ConfirmationSize is the size of a confirmation value.
	ConfirmationSize = 16

	// AuthValueSize is the size of the authentication value. With no OOB
	// authentication it is all zeros.
	AuthValueSize = 16

	// PublicKeySize is the raw X || Y public key size.
	PublicKeySize = 64

	// DeviceKeySize is the size of the derived device key.
	DeviceKeySize = 16
)

// Algorithm bits advertised in the Capabilities PDU.
const (
	// AlgorithmP256CMACAES128 is BTM_ECDH_P256_CMAC_AES128_AES_CCM.
	AlgorithmP256CMACAES128 uint16 = 1 << 0

	// AlgorithmP256HMACSHA256 is BTM_ECDH_P256_HMAC_SHA256_AES_CCM. Not supported.
	AlgorithmP256HMACSHA256 uint16 = 1 << 1
)

// Values selected in the Start PDU.
const (
	startAlgorithmP256CMACAES128 = 0x00
	startPublicKeyNoOOB          = 0x00
	startAuthMethodNoOOB         = 0x00
)

// PublicKeyTypeOOB is the Capabilities bit advertising an OOB public key.
const PublicKeyTypeOOB = 1 << 0

// Errors.
var (
	ErrInvalidPDU            = errors.New("provisioning: invalid PDU")
	ErrInvalidFormat         = errors.New("provisioning: invalid format")
	ErrUnexpectedPDU         = errors.New("provisioning: unexpected PDU")
	ErrUnsupportedAlgorithm  = errors.New("provisioning: no supported algorithm")
	ErrConfirmationFailed    = errors.New("provisioning: confirmation failed")
	ErrConfirmationReflected = errors.New("provisioning: peer confirmation equals own confirmation")
	ErrPublicKeyReflected    = errors.New("provisioning: peer public key equals own public key")
	ErrDecryptionFailed      = errors.New("provisioning: decryption failed")
	ErrInvalidData           = errors.New("provisioning: invalid provisioning data")
	ErrPeerFailed            = errors.New("provisioning: peer reported failure")
	ErrTransport             = errors.New("provisioning: transport error")
	ErrInputsIncomplete      = errors.New("provisioning: confirmation inputs incomplete")
	ErrInputsOrder           = errors.New("provisioning: confirmation inputs written out of order")
	ErrAddressAssignment     = errors.New("provisioning: cannot assign unicast address")
	ErrInvalidState          = errors.New("provisioning: invalid protocol state")
	ErrSessionClosed         = errors.New("provisioning: session closed")
)

// ErrorCode is the error code carried by a Failed PDU.
type ErrorCode uint8

const (
	ErrorProhibited            ErrorCode = 0x00
	ErrorInvalidPDU            ErrorCode = 0x01
	ErrorInvalidFormat         ErrorCode = 0x02
	ErrorUnexpectedPDU         ErrorCode = 0x03
	ErrorConfirmationFailed    ErrorCode = 0x04
	ErrorOutOfResources        ErrorCode = 0x05
	ErrorDecryptionFailed      ErrorCode = 0x06
	ErrorUnexpectedError       ErrorCode = 0x07
	ErrorCannotAssignAddresses ErrorCode = 0x08
	ErrorInvalidData           ErrorCode = 0x09
)

// String returns the human-readable reason for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorProhibited:
		return "Prohibited"
	case ErrorInvalidPDU:
		return "Invalid PDU"
	case ErrorInvalidFormat:
		return "Invalid Format"
	case ErrorUnexpectedPDU:
		return "Unexpected PDU"
	case ErrorConfirmationFailed:
		return "Confirmation Failed"
	case ErrorOutOfResources:
		return "Out of Resources"
	case ErrorDecryptionFailed:
		return "Decryption Failed"
	case ErrorUnexpectedError:
		return "Unexpected Error"
	case ErrorCannotAssignAddresses:
		return "Cannot Assign Addresses"
	case ErrorInvalidData:
		return "Invalid Data"
	default:
		return "Reserved"
	}
}

// PeerFailureError is returned when the peer sends a Failed PDU.
type PeerFailureError struct {
	Code ErrorCode
}

func (e *PeerFailureError) Error() string {
	return fmt.Sprintf("provisioning failed: %s (0x%02x)", e.Code, uint8(e.Code))
}

// Unwrap returns ErrPeerFailed.
func (e *PeerFailureError) Unwrap() error {
	return ErrPeerFailed
}

// failureCode maps a local error to the code reported in a Failed PDU.
func failureCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return ErrorInvalidFormat
	case errors.Is(err, ErrInvalidPDU):
		return ErrorInvalidPDU
	case errors.Is(err, ErrUnexpectedPDU):
		return ErrorUnexpectedPDU
	case errors.Is(err, ErrConfirmationFailed), errors.Is(err, ErrConfirmationReflected):
		return ErrorConfirmationFailed
	case errors.Is(err, ErrDecryptionFailed):
		return ErrorDecryptionFailed
	case errors.Is(err, ErrInvalidData):
		return ErrorInvalidData
	case errors.Is(err, ErrAddressAssignment):
		return ErrorCannotAssignAddresses
	default:
		return ErrorUnexpectedError
	}
}

// Transition describes one step of a state machine.
type Transition struct {
	From State
	To   State

	// Frames are the outbound proxy PDUs, in send order.
	Frames [][]byte
}
