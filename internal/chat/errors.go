package chat

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotIdentified    = "not_identified"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeAlreadyJoined    = "already_joined"
	ErrCodeNotJoined        = "not_joined"
	ErrCodeMalformedMessage = "malformed_message"
	ErrCodeStoreConnection  = "store_connection"
)

// Sentinels for errors.Is matching against domain errors.
var (
	ErrNotIdentified = errors.New("not identified")
	ErrAlreadyExists = errors.New("user already exists")
	ErrAlreadyJoined = errors.New("already joined")
	ErrNotJoined     = errors.New("not joined")
)

// Error wraps a code and a message the presentation layer can show as-is.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches a domain error against the sentinel for its code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotIdentified:
		return e.Code == ErrCodeNotIdentified
	case ErrAlreadyExists:
		return e.Code == ErrCodeAlreadyExists
	case ErrAlreadyJoined:
		return e.Code == ErrCodeAlreadyJoined
	case ErrNotJoined:
		return e.Code == ErrCodeNotJoined
	}
	return false
}

func chatError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// storeFailure classifies a transport error talking to the backing store.
func storeFailure(err error) *Error {
	return &Error{Code: ErrCodeStoreConnection, Message: "store failure: " + err.Error()}
}

// Code extracts the domain error code from err, or "" for non-domain errors.
func Code(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}
