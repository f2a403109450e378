package provisioning

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/meshprov/pkg/crypto"
	"github.com/pion/logging"
)

// ProvisionerConfig configures a Provisioner.
type ProvisionerConfig struct {
	// Data is the credential delivered to the device. UnicastAddress may be
	// left zero when AssignAddress is set.
	Data ProvisioningData

	// AssignAddress, if set, is called once the device's element count is
	// known and returns the primary unicast address for it.
	AssignAddress func(elements uint8) (uint16, error)

	// KeyPair overrides the ephemeral key pair. Tests only.
	KeyPair *crypto.P256KeyPair

	// Rand is the source of the provisioner random. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Result is the outcome of a completed handshake.
type Result struct {
	DeviceKey      [DeviceKeySize]byte
	UnicastAddress uint16
	Elements       uint8
	Data           ProvisioningData
	Capabilities   Capabilities
}

// Provisioner is the provisioner side of the handshake. It is owned by a
// single goroutine; Start, Feed and Abort must not be called concurrently.
type Provisioner struct {
	state State
	err   error

	data          ProvisioningData
	assignAddress func(uint8) (uint16, error)
	fixedKey      *crypto.P256KeyPair
	rand          io.Reader

	hs   handshake
	caps Capabilities

	result *Result

	log logging.LeveledLogger
}

// NewProvisioner creates a provisioner in StateIdle.
func NewProvisioner(config ProvisionerConfig) *Provisioner {
	p := &Provisioner{
		state:         StateIdle,
		data:          config.Data,
		assignAddress: config.AssignAddress,
		fixedKey:      config.KeyPair,
		rand:          config.Rand,
	}
	if p.rand == nil {
		p.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		p.log = config.LoggerFactory.NewLogger("provisioning")
	}
	return p
}

// State returns the current state.
func (p *Provisioner) State() State {
	return p.state
}

// Err returns the error that ended the handshake, if any.
func (p *Provisioner) Err() error {
	return p.err
}

// Capabilities returns the capabilities received from the device. The
// second value is false until Capabilities has been processed.
func (p *Provisioner) Capabilities() (Capabilities, bool) {
	return p.caps, p.caps.Elements != 0
}

// Result returns the handshake result once the state is StateComplete.
func (p *Provisioner) Result() (*Result, bool) {
	if p.state != StateComplete || p.result == nil {
		return nil, false
	}
	r := *p.result
	return &r, true
}

// Start sends the Invite and enters StateInviteSent.
func (p *Provisioner) Start() (Transition, error) {
	if p.state != StateIdle {
		return Transition{From: p.state, To: p.state}, fmt.Errorf("%w: start in %s", ErrInvalidState, p.state)
	}

	invite := &Invite{AttentionDuration: 0}
	if err := p.hs.inputs.Write(InputInvite, EncodePayload(invite)); err != nil {
		return p.abort(err), p.err
	}
	return p.advance(StateInviteSent, EncodeFrame(invite)), nil
}

// Feed processes one inbound proxy PDU. On failure the returned transition
// ends in StateAborted or StateFailed and the error describes why.
func (p *Provisioner) Feed(frame []byte) (Transition, error) {
	if p.state.Terminal() {
		return Transition{From: p.state, To: p.state}, fmt.Errorf("%w: %s", ErrSessionClosed, p.state)
	}

	pdu, err := DecodeFrame(frame)
	if err != nil {
		return p.abort(err), p.err
	}

	if p.log != nil {
		p.log.Debugf("received %s in %s", pdu.Opcode(), p.state)
	}

	if f, ok := pdu.(*Failed); ok {
		return p.fail(f.Code), p.err
	}

	switch m := pdu.(type) {
	case *Capabilities:
		if p.state != StateInviteSent {
			break
		}
		return p.handleCapabilities(m)
	case *PublicKey:
		if p.state != StateStartAndKeySent {
			break
		}
		return p.handlePublicKey(m)
	case *Confirmation:
		if p.state != StateConfirmationSent {
			break
		}
		return p.handleConfirmation(m)
	case *Random:
		if p.state != StateRandomSent {
			break
		}
		return p.handleRandom(m)
	case *Complete:
		if p.state != StateDataSent {
			break
		}
		return p.complete(), nil
	}

	return p.abort(fmt.Errorf("%w: %s in %s", ErrUnexpectedPDU, pdu.Opcode(), p.state)), p.err
}

// Abort ends the handshake locally, for example on a transport error or
// cancellation. It is a no-op in a terminal state.
func (p *Provisioner) Abort(err error) Transition {
	if p.state.Terminal() {
		return Transition{From: p.state, To: p.state}
	}
	return p.abort(err)
}

func (p *Provisioner) handleCapabilities(m *Capabilities) (Transition, error) {
	if err := p.hs.inputs.Write(InputCapabilities, EncodePayload(m)); err != nil {
		return p.abort(err), p.err
	}
	if m.Elements == 0 {
		return p.abort(fmt.Errorf("%w: device reports zero elements", ErrInvalidFormat)), p.err
	}
	if m.Algorithms&AlgorithmP256CMACAES128 == 0 {
		return p.abort(fmt.Errorf("%w: algorithms 0x%04x", ErrUnsupportedAlgorithm, m.Algorithms)), p.err
	}
	if m.PublicKeyType&PublicKeyTypeOOB != 0 && p.log != nil {
		p.log.Infof("device offers OOB public key, using no-OOB exchange")
	}
	p.caps = *m

	if p.assignAddress != nil {
		addr, err := p.assignAddress(m.Elements)
		if err != nil {
			return p.abort(fmt.Errorf("%w: %w", ErrAddressAssignment, err)), p.err
		}
		p.data.UnicastAddress = addr
	}
	if err := p.data.Validate(); err != nil {
		return p.abort(err), p.err
	}

	start := &Start{
		Algorithm:  startAlgorithmP256CMACAES128,
		PublicKey:  startPublicKeyNoOOB,
		AuthMethod: startAuthMethodNoOOB,
	}
	if err := p.hs.inputs.Write(InputStart, EncodePayload(start)); err != nil {
		return p.abort(err), p.err
	}

	if err := p.hs.generateKeyPair(p.fixedKey); err != nil {
		return p.abort(err), p.err
	}
	p.fixedKey = nil
	if err := p.hs.inputs.Write(InputProvisionerKey, p.hs.localKey[:]); err != nil {
		return p.abort(err), p.err
	}

	return p.advance(StateStartAndKeySent,
		EncodeFrame(start),
		EncodeFrame(&PublicKey{Key: p.hs.localKey}),
	), nil
}

func (p *Provisioner) handlePublicKey(m *PublicKey) (Transition, error) {
	if err := p.hs.agree(m.Key); err != nil {
		return p.abort(err), p.err
	}
	if err := p.hs.inputs.Write(InputDeviceKey, m.Key[:]); err != nil {
		return p.abort(err), p.err
	}
	if err := p.hs.deriveConfirmationKey(); err != nil {
		return p.abort(err), p.err
	}
	if err := p.hs.generateRandom(p.rand); err != nil {
		return p.abort(fmt.Errorf("generate random: %w", err)), p.err
	}
	p.hs.localConfirmation = p.hs.confirmation(p.hs.localRandom)

	return p.advance(StateConfirmationSent,
		EncodeFrame(&Confirmation{Value: p.hs.localConfirmation}),
	), nil
}

func (p *Provisioner) handleConfirmation(m *Confirmation) (Transition, error) {
	if crypto.Equal(m.Value[:], p.hs.localConfirmation[:]) {
		return p.abort(ErrConfirmationReflected), p.err
	}
	p.hs.peerConfirmation = m.Value

	return p.advance(StateRandomSent,
		EncodeFrame(&Random{Value: p.hs.localRandom}),
	), nil
}

func (p *Provisioner) handleRandom(m *Random) (Transition, error) {
	p.hs.peerRandom = m.Value
	if err := p.hs.checkPeerConfirmation(); err != nil {
		return p.abort(err), p.err
	}
	from := p.state
	p.setState(StateVerified)

	keys := p.hs.deriveSessionKeys(p.hs.localRandom, p.hs.peerRandom)
	defer keys.wipe()

	plaintext := p.data.Encode()
	defer crypto.Zero(plaintext)
	sealed, err := crypto.AESCCMEncrypt(keys.key[:], keys.nonce[:], plaintext, nil, dataMICSize)
	if err != nil {
		return p.abort(err), p.err
	}
	var data Data
	copy(data.Encrypted[:], sealed[:ProvisioningDataSize])
	copy(data.MIC[:], sealed[ProvisioningDataSize:])

	p.result = &Result{
		DeviceKey:      p.hs.deviceKey,
		UnicastAddress: p.data.UnicastAddress,
		Elements:       p.caps.Elements,
		Data:           p.data,
		Capabilities:   p.caps,
	}

	tr := p.advance(StateDataSent, EncodeFrame(&data))
	tr.From = from
	return tr, nil
}

func (p *Provisioner) complete() Transition {
	tr := p.advance(StateComplete)
	p.hs.wipe()
	if p.log != nil {
		p.log.Infof("device provisioned at 0x%04x with %d element(s)", p.result.UnicastAddress, p.result.Elements)
	}
	return tr
}

func (p *Provisioner) fail(code ErrorCode) Transition {
	from := p.state
	p.setState(StateFailed)
	p.err = &PeerFailureError{Code: code}
	p.hs.wipe()
	p.result = nil
	if p.log != nil {
		p.log.Warnf("device reported failure: %s", code)
	}
	return Transition{From: from, To: StateFailed}
}

func (p *Provisioner) abort(err error) Transition {
	from := p.state
	p.setState(StateAborted)
	p.err = err
	p.hs.wipe()
	p.result = nil
	if p.log != nil {
		p.log.Warnf("handshake aborted in %s: %v", from, err)
	}
	return Transition{From: from, To: StateAborted}
}

func (p *Provisioner) advance(to State, frames ...[]byte) Transition {
	from := p.state
	p.setState(to)
	return Transition{From: from, To: to, Frames: frames}
}

func (p *Provisioner) setState(to State) {
	if p.log != nil {
		p.log.Debugf("%s -> %s", p.state, to)
	}
	p.state = to
}
