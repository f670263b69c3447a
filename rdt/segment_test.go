package rdt

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seg := Segment{
		Header: Header{
			SrcPort: 1234,
			DstPort: 5678,
			SeqNum:  1024,
			AckNum:  2048,
			Flags:   FlagACK | FlagFIN,
		},
		Payload: []byte("hello, rdt"),
	}
	buf := Encode(seg)
	if len(buf) != HeaderLen+len(seg.Payload) {
		t.Fatalf("len(buf) = %d, want %d", len(buf), HeaderLen+len(seg.Payload))
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Header.SrcPort != seg.Header.SrcPort || got.Header.DstPort != seg.Header.DstPort {
		t.Fatalf("port mismatch: %+v", got.Header)
	}
	if got.Header.SeqNum != seg.Header.SeqNum || got.Header.AckNum != seg.Header.AckNum {
		t.Fatalf("seq/ack mismatch: %+v", got.Header)
	}
	if got.Header.Flags != seg.Header.Flags {
		t.Fatalf("flags mismatch: got %v want %v", got.Header.Flags, seg.Header.Flags)
	}
	if !bytes.Equal(got.Payload, seg.Payload) {
		t.Fatalf("payload mismatch: got %q want %q", got.Payload, seg.Payload)
	}
}

func TestDecodeRejectsMalformedShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, HeaderLen-1))
	if err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	seg := Segment{Header: Header{SeqNum: 1}, Payload: []byte("x")}
	buf := Encode(seg)
	buf[len(buf)-1] ^= 0xFF // flip a payload bit
	_, err := Decode(buf)
	if err != ErrChecksum {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}
}

func TestChecksumIdempotence(t *testing.T) {
	seg := Segment{Header: Header{SeqNum: 7, AckNum: 9}, Payload: []byte("abc")}
	buf := Encode(seg)
	f, _ := NewFrame(buf)
	if !f.VerifyChecksum() {
		t.Fatal("freshly encoded frame should verify")
	}
	original := f.Checksum()
	f.ComputeChecksum()
	if f.Checksum() != original {
		t.Fatalf("recomputing checksum on unmutated frame changed it: %d != %d", f.Checksum(), original)
	}
}

func TestFlagsString(t *testing.T) {
	f := FlagACK | FlagFIN
	if got := f.String(); got != "[ACK,FIN]" {
		t.Fatalf("String() = %q, want [ACK,FIN]", got)
	}
	if got := Flags(0).String(); got != "[]" {
		t.Fatalf("String() = %q, want []", got)
	}
}

func TestStepRule(t *testing.T) {
	if step(0) != 1 {
		t.Fatalf("step(0) = %d, want 1", step(0))
	}
	if step(512) != 512 {
		t.Fatalf("step(512) = %d, want 512", step(512))
	}
}
