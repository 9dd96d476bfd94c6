package protocol

import "errors"

// Sentinel errors for handshake and frame-level failures. Connection code
// matches against these with errors.Is to pick the outbound close code
// (spec.md section 7).
var (
	// ErrHandshakeIncomplete is returned by ParseHandshake while the
	// accumulated buffer does not yet contain a full CRLFCRLF-terminated
	// request. It is not a failure; callers should keep appending bytes.
	ErrHandshakeIncomplete = errors.New("protocol: handshake incomplete")

	// ErrInvalidUpgradeHeaders covers a missing/incorrect Upgrade or
	// Connection header.
	ErrInvalidUpgradeHeaders = errors.New("protocol: invalid websocket upgrade headers")

	// ErrMissingWebSocketKey is returned when Sec-WebSocket-Key is absent
	// or not valid base64 of 16 bytes.
	ErrMissingWebSocketKey = errors.New("protocol: missing or malformed Sec-WebSocket-Key")

	// ErrBadWebSocketVersion covers any Sec-WebSocket-Version other than "13".
	ErrBadWebSocketVersion = errors.New("protocol: unsupported Sec-WebSocket-Version")

	// ErrProtocol covers malformed frames: bad RSV bits, unmasked client
	// frames, unknown opcodes, oversized control frames, and
	// out-of-sequence continuation frames.
	ErrProtocol = errors.New("protocol: frame violates RFC 6455")

	// ErrInvalidUTF8 is returned when a complete text message's payload is
	// not valid UTF-8.
	ErrInvalidUTF8 = errors.New("protocol: invalid UTF-8 in text message")

	// ErrMessageTooLarge is returned when a data message, whether a single
	// frame or reassembled from fragments, exceeds the configured maximum.
	ErrMessageTooLarge = errors.New("protocol: message exceeds maximum size")
)
