package provisioning

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationInputsOrder(t *testing.T) {
	var in ConfirmationInputs

	_, err := in.Bytes()
	assert.ErrorIs(t, err, ErrInputsIncomplete)

	require.NoError(t, in.Write(InputInvite, []byte{0x00}))
	assert.ErrorIs(t, in.Write(InputStart, make([]byte, 5)), ErrInputsOrder)
	assert.ErrorIs(t, in.Write(InputInvite, []byte{0x00}), ErrInputsOrder)
	assert.ErrorIs(t, in.Write(InputCapabilities, make([]byte, 10)), ErrInvalidFormat)

	require.NoError(t, in.Write(InputCapabilities, bytes.Repeat([]byte{0x11}, 11)))
	require.NoError(t, in.Write(InputStart, bytes.Repeat([]byte{0x22}, 5)))
	require.NoError(t, in.Write(InputProvisionerKey, bytes.Repeat([]byte{0x33}, 64)))

	_, err = in.Bytes()
	assert.ErrorIs(t, err, ErrInputsIncomplete)
	assert.False(t, in.Complete())

	require.NoError(t, in.Write(InputDeviceKey, bytes.Repeat([]byte{0x44}, 64)))
	assert.True(t, in.Complete())
	assert.ErrorIs(t, in.Write(InputDeviceKey, bytes.Repeat([]byte{0x44}, 64)), ErrInputsOrder)

	got, err := in.Bytes()
	require.NoError(t, err)
	require.Len(t, got, ConfirmationInputsSize)
	assert.Equal(t, byte(0x00), got[0])
	assert.Equal(t, byte(0x11), got[1])
	assert.Equal(t, byte(0x22), got[12])
	assert.Equal(t, byte(0x33), got[17])
	assert.Equal(t, byte(0x44), got[81])
	assert.Equal(t, byte(0x44), got[144])

	in.Reset()
	assert.False(t, in.Complete())
	require.NoError(t, in.Write(InputInvite, []byte{0x07}))
}

func TestConfirmationInputsSample(t *testing.T) {
	var in ConfirmationInputs
	caps, err := Decode(mustHex(t, "01"+sampleCapabilities))
	require.NoError(t, err)

	require.NoError(t, in.Write(InputInvite, EncodePayload(&Invite{})))
	require.NoError(t, in.Write(InputCapabilities, EncodePayload(caps)))
	require.NoError(t, in.Write(InputStart, EncodePayload(&Start{})))
	require.NoError(t, in.Write(InputProvisionerKey, mustHex(t, sampleProvisionerPublic)))
	require.NoError(t, in.Write(InputDeviceKey, mustHex(t, sampleDevicePublic)))

	got, err := in.Bytes()
	require.NoError(t, err)
	want := mustHex(t, "00"+sampleCapabilities+"0000000000"+sampleProvisionerPublic+sampleDevicePublic)
	assert.Equal(t, want, got)
}
