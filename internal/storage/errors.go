package storage

import "errors"

var (
	ErrBadInput         = errors.New("storage: bad input")
	ErrClosed           = errors.New("storage: database file not open")
	ErrInvalidFormat    = errors.New("storage: invalid database file format")
	ErrChecksumMismatch = errors.New("storage: page checksum mismatch")
	ErrTupleNotFound    = errors.New("storage: tuple not found")
	ErrBufferTooSmall   = errors.New("storage: buffer too small")
	ErrInvalidTuple     = errors.New("storage: invalid tuple id or circular forwarding chain")
	ErrOutOfSpace       = errors.New("storage: could not find or allocate a page with enough space")
)
