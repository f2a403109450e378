package provisioner

import "errors"

// Driver errors.
var (
	// ErrNoStore indicates a Client was configured without a network store.
	ErrNoStore = errors.New("provisioner: no network store configured")

	// ErrHandshakeFailed wraps the error that ended an unsuccessful handshake.
	ErrHandshakeFailed = errors.New("provisioner: handshake failed")

	// ErrPersistFailed indicates the device was provisioned but could not be
	// recorded in the store.
	ErrPersistFailed = errors.New("provisioner: failed to record node")
)
