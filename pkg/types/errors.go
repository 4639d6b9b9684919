package types

import "errors"

var (
	// ErrAlreadyExists is returned by a registry insert that collides with an
	// existing row for the same L1 batch number. Benign for the creator:
	// another run already committed this snapshot.
	ErrAlreadyExists = errors.New("snapshot already exists for this l1 batch")

	// ErrNotFound is returned when no snapshot exists for the requested L1
	// batch number.
	ErrNotFound = errors.New("snapshot not found")

	// ErrMalformedChunk is returned when chunk bytes are truncated, corrupted
	// or structurally invalid. Readers must never receive partial data.
	ErrMalformedChunk = errors.New("malformed snapshot chunk")
)
