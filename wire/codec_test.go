package wire

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestValueEqual(t *testing.T) {
	assert.Equal(t, BoolValue(true).Equal(BoolValue(true)), true)
	assert.Equal(t, BoolValue(true).Equal(BoolValue(false)), false)
	assert.Equal(t, IntValue(30).Equal(IntValue(30)), true)
	assert.Equal(t, FloatValue(1.5).Equal(IntValue(1)), false)
	assert.Equal(t, StringValue("high").Equal(StringValue("high")), true)
}

func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		{Type: MsgGetVariable, ID: 1, Payload: appendName(nil, "exposure")},
		{Type: MsgGetAllVariables, ID: 2, Payload: nil},
		{Type: MsgVariableUpdate, ID: 0, Payload: appendVariableRecord(nil, VariableRecord{
			Name: "exposure", Value: FloatValue(150.0), ReadOnly: false,
		})},
	}
	for _, f := range frames {
		b := EncodeFrame(f)
		got, err := DecodeFrame(b)
		assert.Equal(t, err, nil)
		assert.Equal(t, got.Type, f.Type)
		assert.Equal(t, got.ID, f.ID)
		assert.Equal(t, got.Payload, f.Payload)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	cases := []Command{
		{Type: MsgGetVariable, ID: 7, Name: "exposure"},
		{Type: MsgSetVariable, ID: 8, Name: "exposure", Value: FloatValue(150.0)},
		{Type: MsgSetVariable, ID: 9, Name: "connected", Value: BoolValue(false)},
		{Type: MsgSetVariable, ID: 10, Name: "fps", Value: IntValue(30)},
		{Type: MsgSetVariable, ID: 11, Name: "mode", Value: StringValue("high")},
		{Type: MsgGetAllVariables, ID: 12},
		{Type: MsgGetAllTriggers, ID: 13},
		{Type: MsgExecuteTrigger, ID: 14, Name: "capture"},
	}
	for _, cmd := range cases {
		body, err := EncodeCommand(cmd)
		assert.Equal(t, err, nil)
		got, err := DecodeCommand(body)
		assert.Equal(t, err, nil)
		assert.Equal(t, got.Type, cmd.Type)
		assert.Equal(t, got.ID, cmd.ID)
		assert.Equal(t, got.Name, cmd.Name)
		assert.Equal(t, got.Value.Equal(cmd.Value) || (cmd.Value == Value{} && got.Value == Value{}), true)
	}
}

func TestGetVariableSuccessRoundTrip(t *testing.T) {
	rec := VariableRecord{Name: "exposure", Value: FloatValue(150.0), ReadOnly: false}
	body, err := EncodeSuccessResponse(MsgGetVariable, 42, Response{Variable: rec})
	assert.Equal(t, err, nil)

	resp, err := DecodeResponse(body, MsgGetVariable)
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.IsError, false)
	assert.Equal(t, resp.ID, uint32(42))
	assert.Equal(t, resp.Variable.Name, rec.Name)
	assert.Equal(t, resp.Variable.Value.Equal(rec.Value), true)
	assert.Equal(t, resp.Variable.ReadOnly, rec.ReadOnly)
}

func TestGetAllVariablesSuccessRoundTrip(t *testing.T) {
	vars := []VariableRecord{
		{Name: "exposure", Value: FloatValue(150.0)},
		{Name: "connected", Value: BoolValue(true), ReadOnly: true},
		{Name: "fps", Value: IntValue(30)},
	}
	body, err := EncodeSuccessResponse(MsgGetAllVariables, 1, Response{Variables: vars})
	assert.Equal(t, err, nil)

	resp, err := DecodeResponse(body, MsgGetAllVariables)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(resp.Variables), len(vars))
	for i, v := range vars {
		assert.Equal(t, resp.Variables[i].Name, v.Name)
		assert.Equal(t, resp.Variables[i].Value.Equal(v.Value), true)
		assert.Equal(t, resp.Variables[i].ReadOnly, v.ReadOnly)
	}
}

func TestGetAllTriggersSuccessRoundTrip(t *testing.T) {
	names := []string{"capture", "reset", "calibrate"}
	body, err := EncodeSuccessResponse(MsgGetAllTriggers, 2, Response{TriggerNames: names})
	assert.Equal(t, err, nil)

	resp, err := DecodeResponse(body, MsgGetAllTriggers)
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.TriggerNames, names)
}

func TestSetVariableSuccessRoundTrip(t *testing.T) {
	body, err := EncodeSuccessResponse(MsgSetVariable, 3, Response{})
	assert.Equal(t, err, nil)
	resp, err := DecodeResponse(body, MsgSetVariable)
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.IsError, false)
	assert.Equal(t, resp.Message, "")
}

func TestErrorResponseRoundTrip(t *testing.T) {
	body := EncodeErrorResponse(99, "Variable not found: missing")
	resp, err := DecodeResponse(body, MsgGetVariable)
	assert.Equal(t, err, nil)
	assert.Equal(t, resp.IsError, true)
	assert.Equal(t, resp.ID, uint32(99))
	assert.Equal(t, resp.Message, "Variable not found: missing")
}

func TestVariableUpdateRoundTrip(t *testing.T) {
	rec := VariableRecord{Name: "exposure", Value: FloatValue(150.0)}
	body := EncodeVariableUpdate(rec)
	got, err := DecodeVariableUpdate(body)
	assert.Equal(t, err, nil)
	assert.Equal(t, got.Name, rec.Name)
	assert.Equal(t, got.Value.Equal(rec.Value), true)
}

func TestDecodeFrameTruncated(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	assert.NotEqual(t, err, nil)
}

func TestDecodeCommandUnknownType(t *testing.T) {
	body := EncodeFrame(Frame{Type: MsgType(200), ID: 1})
	_, err := DecodeCommand(body)
	assert.NotEqual(t, err, nil)
}
