package connect

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("connect: not connected")
	ErrAlreadyConnected = errors.New("connect: already connected")
	ErrProtocol         = errors.New("connect: protocol violation")
)

// NackError reports a command the remote rejected after the send budget was
// exhausted. Code carries the single status byte from the synchronous
// variant and is empty for the asynchronous one.
type NackError struct {
	Command string
	Code    string
}

func (e *NackError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("connect: NACK %s received for command %q", e.Code, e.Command)
	}
	return fmt.Sprintf("connect: NACK received for command %q", e.Command)
}
