package protocol

import "errors"

var (
	ErrInvalid    = errors.New("protocol: invalid request")
	ErrIncomplete = errors.New("protocol: incomplete request")
	ErrTooLarge   = errors.New("protocol: request exceeds buffer capacity")
)
