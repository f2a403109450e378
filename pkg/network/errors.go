package network

import "errors"

// Network errors.
var (
	ErrNetworkNotFound       = errors.New("network: not found")
	ErrNetworkExists         = errors.New("network: already exists")
	ErrInvalidNetwork        = errors.New("network: invalid network")
	ErrInvalidNetworkID      = errors.New("network: invalid network ID")
	ErrInvalidNode           = errors.New("network: invalid node")
	ErrNodeExists            = errors.New("network: node already provisioned")
	ErrAddressInUse          = errors.New("network: address in use")
	ErrAddressSpaceExhausted = errors.New("network: unicast address space exhausted")
)
