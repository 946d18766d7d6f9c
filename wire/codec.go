package wire

import (
	"encoding/binary"
)

// HeaderSize is the fixed size of the frame header.
const HeaderSize = 9

// Frame is a decoded header plus its raw payload bytes. Encode/Decode
// round-trip through Frame: decode(encode(m)) == m for every well-formed
// message.
type Frame struct {
	Type    MsgType
	ID      uint32
	Payload []byte
}

// EncodeFrame serializes a header followed by payload into a single byte
// slice suitable for one wire message body.
func EncodeFrame(f Frame) []byte {
	out := make([]byte, 0, HeaderSize+len(f.Payload))
	out = append(out, byte(f.Type))
	out = appendUint32(out, f.ID)
	out = appendUint32(out, uint32(len(f.Payload)))
	out = append(out, f.Payload...)
	return out
}

// DecodeFrame parses a header and validates that the declared
// payload_size matches the bytes actually present. Truncated input is a
// parse error.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, parseErrorf("frame shorter than header: %d bytes", len(b))
	}
	msgType := MsgType(b[0])
	msgID := binary.LittleEndian.Uint32(b[1:5])
	payloadSize := binary.LittleEndian.Uint32(b[5:9])
	rest := b[HeaderSize:]
	if uint32(len(rest)) != payloadSize {
		return Frame{}, parseErrorf("declared payload_size %d does not match %d actual bytes", payloadSize, len(rest))
	}
	var payload []byte
	if len(rest) > 0 {
		payload = make([]byte, len(rest))
		copy(payload, rest)
	}
	return Frame{Type: msgType, ID: msgID, Payload: payload}, nil
}

// --- command (client -> server) requests ---------------------------------

// Command is a decoded client request: GetVariable, SetVariable,
// GetAllVariables, GetAllTriggers, or ExecuteTrigger.
type Command struct {
	Type  MsgType
	ID    uint32
	Name  string // GetVariable, SetVariable, ExecuteTrigger
	Value Value  // SetVariable only
}

// EncodeCommand encodes a client request into a wire frame body.
func EncodeCommand(cmd Command) ([]byte, error) {
	var payload []byte
	switch cmd.Type {
	case MsgGetVariable, MsgExecuteTrigger:
		payload = appendName(payload, cmd.Name)
	case MsgSetVariable:
		payload = appendName(payload, cmd.Name)
		payload = appendValue(payload, cmd.Value)
	case MsgGetAllVariables, MsgGetAllTriggers:
		// empty payload
	default:
		return nil, parseErrorf("not a command type: %s", cmd.Type)
	}
	return EncodeFrame(Frame{Type: cmd.Type, ID: cmd.ID, Payload: payload}), nil
}

// DecodeCommand parses a client request frame body. An unknown msg_type
// is reported to the caller so it can reply with an Error response
// echoing the msg_id.
func DecodeCommand(body []byte) (Command, error) {
	frame, err := DecodeFrame(body)
	if err != nil {
		return Command{}, err
	}
	cmd := Command{Type: frame.Type, ID: frame.ID}
	switch frame.Type {
	case MsgGetVariable, MsgExecuteTrigger:
		name, _, err := takeName(frame.Payload)
		if err != nil {
			return cmd, err
		}
		cmd.Name = name
	case MsgSetVariable:
		name, rest, err := takeName(frame.Payload)
		if err != nil {
			return cmd, err
		}
		value, _, err := takeValue(rest)
		if err != nil {
			return cmd, err
		}
		cmd.Name, cmd.Value = name, value
	case MsgGetAllVariables, MsgGetAllTriggers:
		// empty payload, nothing to decode
	default:
		return cmd, parseErrorf("unknown command msg_type %d", uint8(frame.Type))
	}
	return cmd, nil
}

// --- responses (server -> client) -----------------------------------------

// Response is a decoded server reply. For is the command type this reply
// answers, needed to interpret a success payload's shape: the payload
// layout on success is specific to the request kind it answers.
type Response struct {
	For     MsgType
	IsError bool
	ID      uint32

	Message        string           // error message, or optional human-readable message on SetVariable/ExecuteTrigger success
	Variable       VariableRecord   // GetVariable success
	Variables      []VariableRecord // GetAllVariables success
	TriggerNames   []string         // GetAllTriggers success
}

// EncodeErrorResponse encodes an Error response (msg_type 0) echoing id.
func EncodeErrorResponse(id uint32, message string) []byte {
	return EncodeFrame(Frame{Type: MsgError, ID: id, Payload: appendName(nil, message)})
}

// EncodeSuccessResponse encodes a Success response (RESP_SUCCESS, msg_type
// 7) shaped according to the request kind `forType` answers.
func EncodeSuccessResponse(forType MsgType, id uint32, resp Response) ([]byte, error) {
	var payload []byte
	switch forType {
	case MsgGetVariable:
		payload = appendVariableRecord(payload, resp.Variable)
	case MsgGetAllVariables:
		payload = appendUint32(payload, uint32(len(resp.Variables)))
		for _, v := range resp.Variables {
			payload = appendVariableRecord(payload, v)
		}
	case MsgGetAllTriggers:
		payload = appendUint32(payload, uint32(len(resp.TriggerNames)))
		for _, name := range resp.TriggerNames {
			payload = appendName(payload, name)
		}
	case MsgSetVariable, MsgExecuteTrigger:
		if resp.Message != "" {
			payload = appendName(payload, resp.Message)
		}
	default:
		return nil, parseErrorf("not a request type with a success shape: %s", forType)
	}
	return EncodeFrame(Frame{Type: MsgSuccess, ID: id, Payload: payload}), nil
}

// DecodeResponse parses a server reply frame body. forType must be the
// msg_type of the original request so a Success payload can be
// interpreted; it is ignored for Error responses.
func DecodeResponse(body []byte, forType MsgType) (Response, error) {
	frame, err := DecodeFrame(body)
	if err != nil {
		return Response{}, err
	}
	switch frame.Type {
	case MsgError:
		message, _, err := takeName(frame.Payload)
		if err != nil {
			return Response{}, err
		}
		return Response{For: forType, IsError: true, ID: frame.ID, Message: message}, nil
	case MsgSuccess:
		resp := Response{For: forType, ID: frame.ID}
		rest := frame.Payload
		switch forType {
		case MsgGetVariable:
			rec, _, err := takeVariableRecord(rest)
			if err != nil {
				return Response{}, err
			}
			resp.Variable = rec
		case MsgGetAllVariables:
			count, r, err := takeUint32(rest)
			if err != nil {
				return Response{}, err
			}
			rest = r
			vars := make([]VariableRecord, 0, count)
			for i := uint32(0); i < count; i++ {
				rec, r, err := takeVariableRecord(rest)
				if err != nil {
					return Response{}, err
				}
				vars = append(vars, rec)
				rest = r
			}
			resp.Variables = vars
		case MsgGetAllTriggers:
			count, r, err := takeUint32(rest)
			if err != nil {
				return Response{}, err
			}
			rest = r
			names := make([]string, 0, count)
			for i := uint32(0); i < count; i++ {
				name, r, err := takeName(rest)
				if err != nil {
					return Response{}, err
				}
				names = append(names, name)
				rest = r
			}
			resp.TriggerNames = names
		case MsgSetVariable, MsgExecuteTrigger:
			if len(rest) > 0 {
				message, _, err := takeName(rest)
				if err != nil {
					return Response{}, err
				}
				resp.Message = message
			}
		default:
			return Response{}, parseErrorf("not a request type with a success shape: %s", forType)
		}
		return resp, nil
	default:
		return Response{}, parseErrorf("not a response msg_type: %s", frame.Type)
	}
}

// --- notifications (server -> subscribers) --------------------------------

// EncodeVariableUpdate encodes a VariableUpdate notification. msg_id is
// always 0 for notifications.
func EncodeVariableUpdate(rec VariableRecord) []byte {
	return EncodeFrame(Frame{Type: MsgVariableUpdate, ID: 0, Payload: appendVariableRecord(nil, rec)})
}

// DecodeVariableUpdate parses a VariableUpdate notification frame body.
func DecodeVariableUpdate(body []byte) (VariableRecord, error) {
	frame, err := DecodeFrame(body)
	if err != nil {
		return VariableRecord{}, err
	}
	if frame.Type != MsgVariableUpdate {
		return VariableRecord{}, parseErrorf("not a VariableUpdate msg_type: %s", frame.Type)
	}
	rec, _, err := takeVariableRecord(frame.Payload)
	if err != nil {
		return VariableRecord{}, err
	}
	return rec, nil
}

// ControlStop is the literal payload of the control-channel wakeup
// message that Server.Stop and Client.Close send on their inproc pair
// socket to break the dispatch/I/O loop out of a blocking poll.
const ControlStop = "STOP\x00"
