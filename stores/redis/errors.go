package redis

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedReply is returned when the consume script replies
	// with something other than {admitted, tokens, last_refill}.
	ErrUnexpectedReply = errors.New("unexpected consume script reply")

	// ErrCorruptEntry is returned when a stored bucket fails to decode.
	ErrCorruptEntry = errors.New("corrupt bucket entry")
)

func NewUnexpectedReplyError(raw any) error {
	return fmt.Errorf("%w: %v (%T)", ErrUnexpectedReply, raw, raw)
}

func NewCorruptEntryError(key string, err error) error {
	return fmt.Errorf("%w for key %q: %w", ErrCorruptEntry, key, err)
}
