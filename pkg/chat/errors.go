package chat

import "errors"

var (
	ErrAuthentication     = errors.New("authentication error")
	ErrNotAMember         = errors.New("not a member of this room")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrProtocol           = errors.New("protocol error")
)

const (
	CodeAuthentication     = "authentication_error"
	CodeNotAMember         = "not_a_member"
	CodeStorageUnavailable = "storage_unavailable"
	CodeProtocol           = "protocol_error"
	CodeInternal           = "internal_error"
)

// ErrorCode maps an error onto the code carried by outbound error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrStorageUnavailable):
		return CodeStorageUnavailable
	case errors.Is(err, ErrProtocol):
		return CodeProtocol
	default:
		return CodeInternal
	}
}
