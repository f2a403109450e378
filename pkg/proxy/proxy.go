// Package proxy implements the one-octet proxy PDU header that frames every
// message exchanged over a mesh provisioning or proxy bearer.
//
//	bit  7 6   5 4 3 2 1 0
//	    [SAR] [message type]
//
// Segmentation and reassembly is not supported: only complete PDUs are
// produced, and any other SAR value is rejected on receipt.
package proxy

import (
	"errors"
	"fmt"
)

// SAR is the segmentation class of a proxy PDU.
type SAR uint8

const (
	SARComplete     SAR = 0b00
	SARFirst        SAR = 0b01
	SARContinuation SAR = 0b10
	SARLast         SAR = 0b11
)

// String returns the SAR name.
func (s SAR) String() string {
	switch s {
	case SARComplete:
		return "Complete"
	case SARFirst:
		return "First"
	case SARContinuation:
		return "Continuation"
	case SARLast:
		return "Last"
	default:
		return fmt.Sprintf("SAR(%d)", uint8(s))
	}
}

// MessageType is the payload type carried by a proxy PDU.
type MessageType uint8

const (
	MessageTypeNetwork      MessageType = 0x00
	MessageTypeBeacon       MessageType = 0x01
	MessageTypeProxyConfig  MessageType = 0x02
	MessageTypeProvisioning MessageType = 0x03
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeNetwork:
		return "Network"
	case MessageTypeBeacon:
		return "Beacon"
	case MessageTypeProxyConfig:
		return "ProxyConfig"
	case MessageTypeProvisioning:
		return "Provisioning"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", uint8(m))
	}
}

const (
	sarShift        = 6
	messageTypeMask = 0x3F
)

// HeaderSize is the size of the proxy PDU header.
const HeaderSize = 1

// Errors.
var (
	ErrEmptyFrame               = errors.New("proxy: empty frame")
	ErrSegmentationNotSupported = errors.New("proxy: segmentation not supported")
	ErrUnexpectedMessageType    = errors.New("proxy: unexpected message type")
	ErrInvalidMessageType       = errors.New("proxy: message type out of range")
)

// Header is the decoded proxy PDU header.
type Header struct {
	SAR         SAR
	MessageType MessageType
}

// Encode returns the header octet.
func (h Header) Encode() byte {
	return byte(h.SAR)<<sarShift | byte(h.MessageType)&messageTypeMask
}

// DecodeHeader splits a header octet.
func DecodeHeader(b byte) Header {
	return Header{
		SAR:         SAR(b >> sarShift),
		MessageType: MessageType(b & messageTypeMask),
	}
}

// EncodeFrame prefixes payload with a complete-SAR header for messageType.
func EncodeFrame(messageType MessageType, payload []byte) ([]byte, error) {
	if messageType > messageTypeMask {
		return nil, ErrInvalidMessageType
	}
	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = Header{SAR: SARComplete, MessageType: messageType}.Encode()
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeFrame validates the header of frame and returns its payload.
//
// The message type must equal want, and the SAR must be complete; a
// segmented frame yields ErrSegmentationNotSupported whatever it carries.
func DecodeFrame(frame []byte, want MessageType) ([]byte, error) {
	if len(frame) < HeaderSize {
		return nil, ErrEmptyFrame
	}
	h := DecodeHeader(frame[0])
	if h.SAR != SARComplete {
		return nil, fmt.Errorf("%w: SAR %s", ErrSegmentationNotSupported, h.SAR)
	}
	if h.MessageType != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessageType, h.MessageType, want)
	}
	return frame[HeaderSize:], nil
}
