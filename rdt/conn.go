package rdt

import (
	"log/slog"
	"net"
	"sync"
	"time"
)

// Conn wraps a single net.PacketConn with a fixed remote send address,
// mirroring the reference implementation's single-socket, single-peer UDP
// client/server. The send and receive paths may cross a lossy link relay
// that rewrites source addresses, so inbound datagrams are accepted from
// whatever address they arrive from rather than filtered against remote.
// SendSegment/ReceiveSegment operate on whole Segments, handling
// encode/decode and checksum verification so callers never touch raw bytes.
type Conn struct {
	mu     sync.Mutex
	pconn  net.PacketConn
	remote net.Addr
	buf    [RecvBufferSize]byte
	Logger
}

// NewConn wraps pconn, sending every segment to remote; inbound datagrams
// are accepted from any source address. log may be nil to disable logging.
func NewConn(pconn net.PacketConn, remote net.Addr, log *slog.Logger) *Conn {
	return &Conn{pconn: pconn, remote: remote, Logger: Logger{Log: log}}
}

// LocalAddr returns the underlying socket's local address.
func (c *Conn) LocalAddr() net.Addr { return c.pconn.LocalAddr() }

// RemoteAddr returns the fixed peer address this Conn talks to.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Close closes the underlying socket.
func (c *Conn) Close() error { return c.pconn.Close() }

// SendSegment encodes and checksums seg and writes it to the remote peer.
func (c *Conn) SendSegment(seg Segment) error {
	buf := Encode(seg)
	c.mu.Lock()
	_, err := c.pconn.WriteTo(buf, c.remote)
	c.mu.Unlock()
	if err == nil {
		c.TraceSegment("conn:send", seg)
	}
	return err
}

// ReceiveSegment blocks until one verified segment arrives from the remote
// peer. Datagrams that fail to decode (ErrMalformed) or fail checksum
// verification (ErrChecksum) are silently discarded per spec and the read
// retried, never surfaced to the caller.
func (c *Conn) ReceiveSegment() (Segment, error) {
	return c.receiveSegment(time.Time{})
}

// ReceiveSegmentTimeout is ReceiveSegment bounded by a read deadline; it
// returns ErrTimeout if no verified segment arrives before deadline.
func (c *Conn) ReceiveSegmentTimeout(deadline time.Time) (Segment, error) {
	return c.receiveSegment(deadline)
}

func (c *Conn) receiveSegment(deadline time.Time) (Segment, error) {
	for {
		if err := c.pconn.SetReadDeadline(deadline); err != nil {
			return Segment{}, err
		}
		n, _, err := c.pconn.ReadFrom(c.buf[:])
		if err != nil {
			if isTimeout(err) {
				return Segment{}, ErrTimeout
			}
			return Segment{}, err
		}
		seg, err := Decode(c.buf[:n])
		if err != nil {
			c.Warn("conn:discard", slog.String("reason", err.Error()))
			continue
		}
		c.TraceSegment("conn:recv", seg)
		return seg, nil
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}
