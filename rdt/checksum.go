package rdt

import "encoding/binary"

// checksum computes the segment checksum over buf (header + payload) with
// the checksum octets at [16:18] treated as zero during the computation.
//
// Deliberately NOT the classical Internet checksum: the accumulator is
// summed over 16-bit big-endian words (a trailing odd byte is zero-padded)
// and the result is masked and inverted WITHOUT folding the carry bits back
// in (no end-around carry). This preserves the idiosyncrasy of the
// reference encoder rather than the RFC1071 algorithm; both peers of this
// protocol must use the same procedure, which is why ComputeChecksum and
// VerifyChecksum both go through this one function.
func checksum(buf []byte) uint16 {
	var sum uint32
	n := len(buf)
	for i := 0; i+1 < n; i += 2 {
		if i == 16 {
			// checksum field itself reads as zero
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(buf[n-1]) << 8
	}
	return ^uint16(sum & 0xffff)
}

// ComputeChecksum zeroes f's checksum field, recomputes it over the full
// frame buffer, and writes the result back.
func (f Frame) ComputeChecksum() {
	f.SetChecksum(0)
	f.SetChecksum(checksum(f.buf))
}

// VerifyChecksum recomputes the checksum over f's buffer (with the stored
// checksum field treated as zero, per the spec's compute procedure) and
// reports whether it matches the stored value.
func (f Frame) VerifyChecksum() bool {
	want := f.Checksum()
	got := checksum(f.buf)
	return got == want
}
