package receiver

import (
	"io"
	"os"
)

// Sink is the positional write target a Receiver delivers payload bytes
// into: each segment's payload is written at offset == its seq_num.
type Sink interface {
	io.WriterAt
}

// OpenSink opens path as a Sink with the file-delivery semantics this
// protocol requires: an existing file is truncated to zero length, a
// missing one is created. Both cases leave the caller with a sparse,
// byte-addressable destination ready for positional writes.
func OpenSink(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
