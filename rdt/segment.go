package rdt

import "strconv"

// Segment is a decoded protocol data unit: a Header plus its payload bytes.
// Payload is nil/empty for pure control segments (ACK, FIN).
type Segment struct {
	Header  Header
	Payload []byte
}

// Step returns the sequence-number distance this segment occupies:
// max(len(Payload), 1), so FIN/ACK-only segments still advance by one.
func (s Segment) Step() Size { return step(len(s.Payload)) }

// Encode serializes s into a freshly allocated HeaderLen+len(Payload) byte
// buffer, computing and filling the checksum field last. SrcPort/DstPort
// are left as set on s.Header; callers needing per-socket ports set them
// before calling Encode.
func Encode(s Segment) []byte {
	buf := make([]byte, HeaderLen+len(s.Payload))
	f, _ := NewFrame(buf)
	h := s.Header
	h.HeaderLen = HeaderLen
	h.Reserved = 0
	f.PutHeader(h)
	copy(f.Payload(), s.Payload)
	f.ComputeChecksum()
	return buf
}

// Decode parses buf into a Segment, verifying its checksum. It returns
// ErrMalformed if buf is shorter than HeaderLen, and ErrChecksum if the
// stored checksum does not match the recomputed one. Both outcomes are
// meant to be handled identically by callers: discard the datagram.
func Decode(buf []byte) (Segment, error) {
	f, err := NewFrame(buf)
	if err != nil {
		return Segment{}, ErrMalformed
	}
	if !f.VerifyChecksum() {
		return Segment{}, ErrChecksum
	}
	payload := make([]byte, len(f.Payload()))
	copy(payload, f.Payload())
	return Segment{Header: f.Header(), Payload: payload}, nil
}

func (s Segment) String() string {
	return s.Header.String() + " len=" + strconv.Itoa(len(s.Payload))
}
