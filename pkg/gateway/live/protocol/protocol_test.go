package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxloop-go/voxloop/pkg/core/live"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := `{"type":"hello","protocol_version":"1","audio_in":{"encoding":"pcm_s16le","sample_rate_hz":24000,"channels":1},"system_prompt":"be brief"}`

	decoded, err := DecodeClientMessage([]byte(raw))
	require.NoError(t, err)

	hello, ok := decoded.(ClientHello)
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion1, hello.ProtocolVersion)
	assert.Equal(t, EncodingPCMS16LE, hello.AudioIn.Encoding)
	assert.Equal(t, 24000, hello.AudioIn.SampleRateHz)
	assert.Equal(t, "be brief", hello.SystemPrompt)
}

func TestDecodeClientMessage_ControlActions(t *testing.T) {
	for _, action := range []string{ActionStartListening, ActionStopListening, ActionEndCapture} {
		decoded, err := DecodeClientMessage([]byte(`{"type":"control","action":"` + action + `"}`))
		require.NoError(t, err, action)
		ctl, ok := decoded.(ClientControl)
		require.True(t, ok)
		assert.Equal(t, action, ctl.Action)
	}

	_, err := DecodeClientMessage([]byte(`{"type":"control","action":"reboot"}`))
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad_request", de.Code)
	assert.Equal(t, "action", de.Param)
}

func TestDecodeClientMessage_UpdateVADRequiresConfig(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"control","action":"update_vad"}`))
	require.Error(t, err)

	decoded, err := DecodeClientMessage([]byte(`{"type":"control","action":"update_vad","vad":{"threshold":12,"silence_duration_ms":500}}`))
	require.NoError(t, err)
	ctl := decoded.(ClientControl)
	require.NotNil(t, ctl.VAD)
	assert.Equal(t, float64(12), ctl.VAD.Threshold)
	assert.Equal(t, 500, ctl.VAD.SilenceDurationMs)
}

func TestDecodeClientMessage_TextRequiresText(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"text","text":"  "}`))
	assert.Error(t, err)

	decoded, err := DecodeClientMessage([]byte(`{"type":"text","text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.(ClientText).Text)
}

func TestDecodeClientMessage_SnapshotRequiresData(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"snapshot","media_type":"image/png"}`))
	assert.Error(t, err)

	decoded, err := DecodeClientMessage([]byte(`{"type":"snapshot","media_type":"image/jpeg","data":"aGk="}`))
	require.NoError(t, err)
	snap := decoded.(ClientSnapshot)
	assert.Equal(t, "image/jpeg", snap.MediaType)
	assert.Equal(t, "aGk=", snap.Data)
}

func TestDecodeClientMessage_RejectsUnknownAndInvalid(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"telemetry"}`))
	assert.Error(t, err)

	_, err = DecodeClientMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestNewServerEventEnvelope(t *testing.T) {
	frame := NewServerEvent(&live.TextDeltaEvent{Delta: "hi"})

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "event", decoded["type"])
	assert.Equal(t, "text.delta", decoded["event"])
	assert.Equal(t, "hi", decoded["data"].(map[string]any)["delta"])
}
