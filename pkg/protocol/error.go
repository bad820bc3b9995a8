package protocol

import (
	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// ErrorMessage is the payload of a FrameError.
type ErrorMessage struct {
	Code    string // Registry code such as "R060"
	Message string
	Fatal   bool // The sender closes the connection after this frame
}

// NewErrorMessage converts err into an ErrorMessage carrying its registry
// code, or fallback when it has none.
func NewErrorMessage(err error, fallback string, fatal bool) *ErrorMessage {
	ce := rerrors.FromError(err, fallback)
	return &ErrorMessage{Code: ce.Code, Message: ce.Error(), Fatal: fatal}
}

// EncodeErrorMessage encodes em as a frame payload.
func EncodeErrorMessage(em *ErrorMessage) []byte {
	e := NewEncoder()
	e.WriteString(em.Code)
	e.WriteString(em.Message)
	e.WriteBool(em.Fatal)
	return e.Bytes()
}

// DecodeErrorMessage decodes a FrameError payload.
func DecodeErrorMessage(data []byte) (*ErrorMessage, error) {
	d := NewDecoder(data)
	code, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	message, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	fatal, err := d.ReadBool()
	if err != nil {
		return nil, err
	}
	return &ErrorMessage{Code: code, Message: message, Fatal: fatal}, nil
}

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	if em.Fatal {
		return "fatal: " + em.Code + ": " + em.Message
	}
	return em.Code + ": " + em.Message
}
