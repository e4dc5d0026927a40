package protocol

import "errors"

var (
	ErrValueType  = errors.New("protocol: value type mismatch")
	ErrValueRange = errors.New("protocol: value out of range")
	ErrTruncated  = errors.New("protocol: truncated data")
)
