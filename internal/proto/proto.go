// Package proto implements the framed wire protocol spoken between the
// gateway and its agents: a fixed header (version, message type, payload
// length) followed by the payload bytes. String frames carry raw UTF-8;
// Request and Response frames carry JSON.
package proto

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// ProtocolVersion is the wire version stamped on every frame.
	ProtocolVersion = 1

	// Message types
	MsgTypeString   = 0x01
	MsgTypeRequest  = 0x02
	MsgTypeResponse = 0x03

	headerSize = 6 // version(1) + type(1) + length(4)
)

const (
	// MaxControlFrame bounds string and request frames. Tokens, names and
	// forwarded request bodies all fit well under this.
	MaxControlFrame = 1 << 20 // 1 MiB

	// MaxResponseFrame is a sanity ceiling for response frames. Agents cap
	// raw response bodies at 50 MiB before base64 expansion; the gateway
	// does not re-validate that cap, it only refuses lengths that could
	// only come from a corrupt or hostile peer.
	MaxResponseFrame = 128 << 20 // 128 MiB
)

var (
	// ErrFrameTooLarge is returned when a length prefix exceeds the allowed
	// maximum for the frame kind being read.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrFrameCorrupt is returned when a frame is structurally invalid:
	// unknown message type, undecodable payload, or a type the caller did
	// not expect at this point of the exchange.
	ErrFrameCorrupt = errors.New("corrupt frame")

	// ErrVersionMismatch is returned when the peer speaks a different
	// protocol version.
	ErrVersionMismatch = errors.New("protocol version mismatch")
)

// Message represents a raw protocol frame.
type Message struct {
	Version byte
	Type    byte
	Length  uint32
	Payload []byte
}

// Request asks an agent to perform one HTTP exchange on its local network.
// Method is an uppercase HTTP verb, or the reserved value MethodHeartbeat
// for liveness probes.
type Request struct {
	ClientName string `json:"clientName"`
	Method     string `json:"method"`
	URL        string `json:"url"`
	Body       string `json:"body"`
}

// Response carries the result of one dispatched Request back to the gateway.
// For normal responses the body is the textual envelope produced by
// EncodeEnvelope; heartbeat responses carry HeartbeatOK verbatim.
type Response struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Reserved protocol literals.
const (
	MethodHeartbeat = "HEARTBEAT"
	HeartbeatURL    = "ping"
	HeartbeatOK     = "heartbeat_ok"

	AuthSuccess = "AUTH_SUCCESS"
	AuthFailed  = "AUTH_FAILED"
)

// WriteMessage writes one frame to the connection.
func WriteMessage(w io.Writer, msgType byte, payload []byte) error {
	header := make([]byte, headerSize)
	header[0] = ProtocolVersion
	header[1] = msgType
	binary.BigEndian.PutUint32(header[2:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}

	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("failed to write frame payload: %w", err)
		}
	}

	return nil
}

// ReadMessage reads one frame from the connection, rejecting frames whose
// declared payload length exceeds maxLen. IO errors (EOF, resets, timeouts)
// are returned unwrapped so callers can tell a vanished peer from a
// misbehaving one.
func ReadMessage(r io.Reader, maxLen uint32) (*Message, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	msg := &Message{
		Version: header[0],
		Type:    header[1],
		Length:  binary.BigEndian.Uint32(header[2:]),
	}

	if msg.Version != ProtocolVersion {
		return nil, fmt.Errorf("%w: peer sent version %d, want %d", ErrVersionMismatch, msg.Version, ProtocolVersion)
	}

	switch msg.Type {
	case MsgTypeString, MsgTypeRequest, MsgTypeResponse:
	default:
		return nil, fmt.Errorf("%w: unknown message type 0x%02x", ErrFrameCorrupt, msg.Type)
	}

	if msg.Length > maxLen {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, msg.Length, maxLen)
	}

	if msg.Length > 0 {
		msg.Payload = make([]byte, msg.Length)
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// WriteString writes a string frame (tokens, names, control literals).
func WriteString(w io.Writer, s string) error {
	return WriteMessage(w, MsgTypeString, []byte(s))
}

// ReadString reads a frame and requires it to be a string frame.
func ReadString(r io.Reader) (string, error) {
	msg, err := ReadMessage(r, MaxControlFrame)
	if err != nil {
		return "", err
	}
	if msg.Type != MsgTypeString {
		return "", fmt.Errorf("%w: expected string frame, got type 0x%02x", ErrFrameCorrupt, msg.Type)
	}
	return string(msg.Payload), nil
}

// WriteRequest writes a request frame.
func WriteRequest(w io.Writer, req *Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return WriteMessage(w, MsgTypeRequest, payload)
}

// ReadRequest reads a frame and requires it to be a request frame.
func ReadRequest(r io.Reader) (*Request, error) {
	msg, err := ReadMessage(r, MaxControlFrame)
	if err != nil {
		return nil, err
	}
	if msg.Type != MsgTypeRequest {
		return nil, fmt.Errorf("%w: expected request frame, got type 0x%02x", ErrFrameCorrupt, msg.Type)
	}
	var req Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, fmt.Errorf("%w: undecodable request payload: %v", ErrFrameCorrupt, err)
	}
	return &req, nil
}

// WriteResponse writes a response frame.
func WriteResponse(w io.Writer, resp *Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return WriteMessage(w, MsgTypeResponse, payload)
}

// ReadResponse reads a frame and requires it to be a response frame.
func ReadResponse(r io.Reader) (*Response, error) {
	msg, err := ReadMessage(r, MaxResponseFrame)
	if err != nil {
		return nil, err
	}
	if msg.Type != MsgTypeResponse {
		return nil, fmt.Errorf("%w: expected response frame, got type 0x%02x", ErrFrameCorrupt, msg.Type)
	}
	var resp Response
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: undecodable response payload: %v", ErrFrameCorrupt, err)
	}
	return &resp, nil
}

// IsHeartbeat reports whether req is the reserved liveness probe.
func IsHeartbeat(req *Request) bool {
	return req.Method == MethodHeartbeat
}
