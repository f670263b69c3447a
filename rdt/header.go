package rdt

import (
	"encoding/binary"
	"strconv"
)

// Header is the fixed 20-octet segment header described by the wire layout:
// source/destination port, seq_num, ack_num, header_len, flags, rcvwd,
// checksum and a reserved word. It is a plain value type; Frame provides
// the buffer-backed accessor view used to encode/decode it in place.
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNum     Value
	AckNum     Value
	HeaderLen  uint8
	Flags      Flags
	RecvWindow uint16
	Checksum   uint16
	// Reserved is always zero on the wire; kept for round-trip fidelity.
	Reserved uint16
}

// Frame wraps a byte buffer holding one encoded segment (header + payload)
// and exposes BigEndian field accessors directly over that buffer, mirroring
// the accessor-over-raw-bytes style used for every framed protocol in this
// codebase. Network byte order is used for all multi-byte fields.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as a Frame. buf must be at least HeaderLen bytes.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderLen {
		return Frame{}, ErrMalformed
	}
	return Frame{buf: buf}, nil
}

// RawData returns the frame's backing buffer, header and payload included.
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SrcPort() uint16          { return binary.BigEndian.Uint16(f.buf[0:2]) }
func (f Frame) SetSrcPort(v uint16)      { binary.BigEndian.PutUint16(f.buf[0:2], v) }
func (f Frame) DstPort() uint16          { return binary.BigEndian.Uint16(f.buf[2:4]) }
func (f Frame) SetDstPort(v uint16)      { binary.BigEndian.PutUint16(f.buf[2:4], v) }
func (f Frame) SeqNum() Value            { return binary.BigEndian.Uint32(f.buf[4:8]) }
func (f Frame) SetSeqNum(v Value)        { binary.BigEndian.PutUint32(f.buf[4:8], v) }
func (f Frame) AckNum() Value            { return binary.BigEndian.Uint32(f.buf[8:12]) }
func (f Frame) SetAckNum(v Value)        { binary.BigEndian.PutUint32(f.buf[8:12], v) }
func (f Frame) HeaderLen() uint8         { return f.buf[12] }
func (f Frame) SetHeaderLen(v uint8)     { f.buf[12] = v }
func (f Frame) Flags() Flags             { return Flags(f.buf[13]) }
func (f Frame) SetFlags(v Flags)         { f.buf[13] = byte(v.Mask()) }
func (f Frame) RecvWindow() uint16       { return binary.BigEndian.Uint16(f.buf[14:16]) }
func (f Frame) SetRecvWindow(v uint16)   { binary.BigEndian.PutUint16(f.buf[14:16], v) }
func (f Frame) Checksum() uint16         { return binary.BigEndian.Uint16(f.buf[16:18]) }
func (f Frame) SetChecksum(v uint16)     { binary.BigEndian.PutUint16(f.buf[16:18], v) }
func (f Frame) Reserved() uint16         { return binary.BigEndian.Uint16(f.buf[18:20]) }
func (f Frame) SetReserved(v uint16)     { binary.BigEndian.PutUint16(f.buf[18:20], v) }

// Payload returns the bytes following the fixed header, for a frame whose
// buffer length is exactly HeaderLen+len(payload) (no trailing garbage).
func (f Frame) Payload() []byte { return f.buf[HeaderLen:] }

// Header copies the frame's fixed fields out into a Header value.
func (f Frame) Header() Header {
	return Header{
		SrcPort:    f.SrcPort(),
		DstPort:    f.DstPort(),
		SeqNum:     f.SeqNum(),
		AckNum:     f.AckNum(),
		HeaderLen:  f.HeaderLen(),
		Flags:      f.Flags(),
		RecvWindow: f.RecvWindow(),
		Checksum:   f.Checksum(),
		Reserved:   f.Reserved(),
	}
}

// PutHeader writes h's fields into the frame's header octets. The payload
// region, if any, is left untouched.
func (f Frame) PutHeader(h Header) {
	f.SetSrcPort(h.SrcPort)
	f.SetDstPort(h.DstPort)
	f.SetSeqNum(h.SeqNum)
	f.SetAckNum(h.AckNum)
	f.SetHeaderLen(h.HeaderLen)
	f.SetFlags(h.Flags)
	f.SetRecvWindow(h.RecvWindow)
	f.SetChecksum(h.Checksum)
	f.SetReserved(h.Reserved)
}

func (h Header) String() string {
	return "seq=" + strconv.FormatUint(uint64(h.SeqNum), 10) +
		" ack=" + strconv.FormatUint(uint64(h.AckNum), 10) +
		" " + h.Flags.String()
}
