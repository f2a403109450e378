package provisioning

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/meshprov/pkg/crypto"
	"github.com/pion/logging"
)

// DefaultCapabilities returns the capabilities of a single-element device
// supporting only the P-256/CMAC suite and no OOB.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Elements:   1,
		Algorithms: AlgorithmP256CMACAES128,
	}
}

// DeviceConfig configures a Device.
type DeviceConfig struct {
	// Capabilities advertised to the provisioner. A zero value uses
	// DefaultCapabilities.
	Capabilities Capabilities

	// KeyPair overrides the ephemeral key pair. Tests only.
	KeyPair *crypto.P256KeyPair

	// Rand is the source of the device random. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Device is the device side of the handshake. It answers each provisioner
// PDU and, on a local abort, reports the reason in a Failed PDU. Like
// Provisioner it is owned by a single goroutine.
type Device struct {
	state State
	err   error

	caps     Capabilities
	fixedKey *crypto.P256KeyPair
	rand     io.Reader

	hs   handshake
	keys sessionKeys

	result *Result

	log logging.LeveledLogger
}

// NewDevice creates a device in StateIdle, waiting for an Invite.
func NewDevice(config DeviceConfig) *Device {
	d := &Device{
		state:    StateIdle,
		caps:     config.Capabilities,
		fixedKey: config.KeyPair,
		rand:     config.Rand,
	}
	if d.caps == (Capabilities{}) {
		d.caps = DefaultCapabilities()
	}
	if d.rand == nil {
		d.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("provisioning")
	}
	return d
}

// State returns the current state.
func (d *Device) State() State {
	return d.state
}

// Err returns the error that ended the handshake, if any.
func (d *Device) Err() error {
	return d.err
}

// Result returns the received credential and derived device key once the
// state is StateComplete.
func (d *Device) Result() (*Result, bool) {
	if d.state != StateComplete || d.result == nil {
		return nil, false
	}
	r := *d.result
	return &r, true
}

// Feed processes one inbound proxy PDU.
func (d *Device) Feed(frame []byte) (Transition, error) {
	if d.state.Terminal() {
		return Transition{From: d.state, To: d.state}, fmt.Errorf("%w: %s", ErrSessionClosed, d.state)
	}

	pdu, err := DecodeFrame(frame)
	if err != nil {
		return d.abort(err), d.err
	}

	if d.log != nil {
		d.log.Debugf("received %s in %s", pdu.Opcode(), d.state)
	}

	switch m := pdu.(type) {
	case *Failed:
		return d.fail(m.Code), d.err
	case *Invite:
		if d.state == StateIdle {
			return d.handleInvite(m)
		}
	case *Start:
		if d.state == StateCapabilitiesSent {
			return d.handleStart(m)
		}
	case *PublicKey:
		if d.state == StateWaitingPublicKey {
			return d.handlePublicKey(m)
		}
	case *Confirmation:
		if d.state == StatePublicKeySent {
			return d.handleConfirmation(m)
		}
	case *Random:
		if d.state == StateConfirmationSent {
			return d.handleRandom(m)
		}
	case *Data:
		if d.state == StateRandomSent {
			return d.handleData(m)
		}
	}

	return d.abort(fmt.Errorf("%w: %s in %s", ErrUnexpectedPDU, pdu.Opcode(), d.state)), d.err
}

// Abort ends the handshake locally. The transition carries a Failed PDU for
// the provisioner. It is a no-op in a terminal state.
func (d *Device) Abort(err error) Transition {
	if d.state.Terminal() {
		return Transition{From: d.state, To: d.state}
	}
	return d.abort(err)
}

func (d *Device) handleInvite(m *Invite) (Transition, error) {
	if d.log != nil && m.AttentionDuration > 0 {
		d.log.Infof("attention requested for %ds", m.AttentionDuration)
	}
	if err := d.hs.inputs.Write(InputInvite, EncodePayload(m)); err != nil {
		return d.abort(err), d.err
	}
	if err := d.hs.inputs.Write(InputCapabilities, EncodePayload(&d.caps)); err != nil {
		return d.abort(err), d.err
	}
	return d.advance(StateCapabilitiesSent, EncodeFrame(&d.caps)), nil
}

func (d *Device) handleStart(m *Start) (Transition, error) {
	if m.Algorithm != startAlgorithmP256CMACAES128 ||
		m.PublicKey != startPublicKeyNoOOB ||
		m.AuthMethod != startAuthMethodNoOOB ||
		m.AuthAction != 0 || m.AuthSize != 0 {
		return d.abort(fmt.Errorf("%w: unsupported start %+v", ErrInvalidFormat, *m)), d.err
	}
	if err := d.hs.inputs.Write(InputStart, EncodePayload(m)); err != nil {
		return d.abort(err), d.err
	}
	return d.advance(StateWaitingPublicKey), nil
}

func (d *Device) handlePublicKey(m *PublicKey) (Transition, error) {
	if err := d.hs.inputs.Write(InputProvisionerKey, m.Key[:]); err != nil {
		return d.abort(err), d.err
	}
	if err := d.hs.generateKeyPair(d.fixedKey); err != nil {
		return d.abort(err), d.err
	}
	d.fixedKey = nil
	if err := d.hs.agree(m.Key); err != nil {
		return d.abort(err), d.err
	}
	if err := d.hs.inputs.Write(InputDeviceKey, d.hs.localKey[:]); err != nil {
		return d.abort(err), d.err
	}
	if err := d.hs.deriveConfirmationKey(); err != nil {
		return d.abort(err), d.err
	}
	return d.advance(StatePublicKeySent, EncodeFrame(&PublicKey{Key: d.hs.localKey})), nil
}

func (d *Device) handleConfirmation(m *Confirmation) (Transition, error) {
	if err := d.hs.generateRandom(d.rand); err != nil {
		return d.abort(fmt.Errorf("generate random: %w", err)), d.err
	}
	d.hs.localConfirmation = d.hs.confirmation(d.hs.localRandom)
	if crypto.Equal(m.Value[:], d.hs.localConfirmation[:]) {
		return d.abort(ErrConfirmationReflected), d.err
	}
	d.hs.peerConfirmation = m.Value
	return d.advance(StateConfirmationSent, EncodeFrame(&Confirmation{Value: d.hs.localConfirmation})), nil
}

func (d *Device) handleRandom(m *Random) (Transition, error) {
	d.hs.peerRandom = m.Value
	if err := d.hs.checkPeerConfirmation(); err != nil {
		return d.abort(err), d.err
	}
	d.keys = d.hs.deriveSessionKeys(d.hs.peerRandom, d.hs.localRandom)
	return d.advance(StateRandomSent, EncodeFrame(&Random{Value: d.hs.localRandom})), nil
}

func (d *Device) handleData(m *Data) (Transition, error) {
	sealed := make([]byte, 0, ProvisioningDataSize+dataMICSize)
	sealed = append(sealed, m.Encrypted[:]...)
	sealed = append(sealed, m.MIC[:]...)

	plaintext, err := crypto.AESCCMDecrypt(d.keys.key[:], d.keys.nonce[:], sealed, nil, dataMICSize)
	if err != nil {
		return d.abort(fmt.Errorf("%w: %w", ErrDecryptionFailed, err)), d.err
	}
	defer crypto.Zero(plaintext)

	data, err := DecodeProvisioningData(plaintext)
	if err != nil {
		return d.abort(err), d.err
	}
	if err := data.Validate(); err != nil {
		return d.abort(err), d.err
	}

	d.result = &Result{
		DeviceKey:      d.hs.deviceKey,
		UnicastAddress: data.UnicastAddress,
		Elements:       d.caps.Elements,
		Data:           data,
		Capabilities:   d.caps,
	}
	tr := d.advance(StateComplete, EncodeFrame(&Complete{}))
	d.wipe()
	if d.log != nil {
		d.log.Infof("provisioned as 0x%04x", data.UnicastAddress)
	}
	return tr, nil
}

func (d *Device) fail(code ErrorCode) Transition {
	from := d.state
	d.setState(StateFailed)
	d.err = &PeerFailureError{Code: code}
	d.wipe()
	if d.log != nil {
		d.log.Warnf("provisioner reported failure: %s", code)
	}
	return Transition{From: from, To: StateFailed}
}

func (d *Device) abort(err error) Transition {
	from := d.state
	d.setState(StateAborted)
	d.err = err
	d.wipe()
	d.result = nil
	code := failureCode(err)
	if d.log != nil {
		d.log.Warnf("handshake aborted in %s: %v (reporting %s)", from, err, code)
	}
	return Transition{From: from, To: StateAborted, Frames: [][]byte{EncodeFrame(&Failed{Code: code})}}
}

func (d *Device) wipe() {
	d.hs.wipe()
	d.keys.wipe()
}

func (d *Device) advance(to State, frames ...[]byte) Transition {
	from := d.state
	d.setState(to)
	return Transition{From: from, To: to, Frames: frames}
}

func (d *Device) setState(to State) {
	if d.log != nil {
		d.log.Debugf("%s -> %s", d.state, to)
	}
	d.state = to
}
