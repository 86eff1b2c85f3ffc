package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-alexander-pop/agentcore/pkg/message"
)

func TestTypeNameMatchesRegisteredType(t *testing.T) {
	name, err := message.TypeName[*message.Empty]()
	require.NoError(t, err)
	assert.Equal(t, "Empty", name)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := message.Encode(&message.Error{Code: "INTERNAL", Message: "boom"})
	require.NoError(t, err)
	assert.Equal(t, "Error", raw.Header.Type)

	decoded, err := message.Decode[*message.Error](raw)
	require.NoError(t, err)
	assert.Equal(t, "INTERNAL", decoded.Code)
	assert.Equal(t, "boom", decoded.Message)
}

func TestDecodeRejectsMismatchedType(t *testing.T) {
	raw, err := message.Encode(&message.Empty{})
	require.NoError(t, err)

	_, err = message.Decode[*message.Error](raw)
	assert.Error(t, err)
}

func TestEncodeEmptyBodyCompactsToNilContent(t *testing.T) {
	raw, err := message.Encode(&message.Empty{})
	require.NoError(t, err)
	assert.Nil(t, raw.Content)
}

func TestDecodeAnyFallsBackToGenericMessage(t *testing.T) {
	raw := message.RawMessage{Header: message.Header{Type: "SomethingUnregistered"}, Content: []byte(`{"x":1}`)}
	decoded, err := message.DecodeAny(raw)
	require.NoError(t, err)

	generic, ok := decoded.(*message.GenericMessage)
	require.True(t, ok)
	assert.Equal(t, "SomethingUnregistered", generic.Raw.Header.Type)
}
