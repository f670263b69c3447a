package sender

import (
	"net"
	"testing"
	"time"

	"github.com/jasonyux/tcp-over-udp/rdt"
)

// pipeAddr is the fixed dummy peer address used by fakePacketConn.
type pipeAddr string

func (a pipeAddr) Network() string { return "fake" }
func (a pipeAddr) String() string  { return string(a) }

// fakePacketConn is an in-memory net.PacketConn backed by a channel, letting
// tests exercise Sender against a peer under the test's direct control
// without going through a real UDP socket.
type fakePacketConn struct {
	in     chan []byte
	closed chan struct{}
}

func newFakePacketConn() *fakePacketConn {
	return &fakePacketConn{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case b := <-c.in:
		n := copy(p, b)
		return n, pipeAddr("peer"), nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case <-time.After(2 * time.Second):
		return 0, nil, fakeTimeoutErr{}
	}
}

func (c *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) { return len(p), nil }
func (c *fakePacketConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}
func (c *fakePacketConn) LocalAddr() net.Addr                { return pipeAddr("local") }
func (c *fakePacketConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakePacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake: i/o timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func (c *fakePacketConn) deliver(seg rdt.Segment) {
	c.in <- rdt.Encode(seg)
}

func newTestSender(t *testing.T, windowSegments int) (*Sender, *fakePacketConn) {
	t.Helper()
	pc := newFakePacketConn()
	conn := rdt.NewConn(pc, pipeAddr("peer"), nil)
	s := New(conn, windowSegments, nil)
	return s, pc
}

func TestSendAdvancesSeqNumBySegmentLength(t *testing.T) {
	s, _ := newTestSender(t, 4)
	if err := s.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := s.SeqNum(); got != 5 {
		t.Fatalf("SeqNum = %d, want 5", got)
	}
	if got := s.WindowLen(); got != 1 {
		t.Fatalf("WindowLen = %d, want 1", got)
	}
}

func TestSendFailsWhenWindowFull(t *testing.T) {
	s, _ := newTestSender(t, 1)
	if err := s.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send([]byte("b")); err != ErrWindowFull {
		t.Fatalf("Send = %v, want ErrWindowFull", err)
	}
}

func TestOnAckDrainsAcknowledgedSegments(t *testing.T) {
	s, _ := newTestSender(t, 4)
	if err := s.Send([]byte("aaaa")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send([]byte("bbbb")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	s.onAck(rdt.Segment{Header: rdt.Header{AckNum: 4, Flags: rdt.FlagACK}})
	if got := s.SendBase(); got != 4 {
		t.Fatalf("SendBase = %d, want 4", got)
	}
	if got := s.WindowLen(); got != 1 {
		t.Fatalf("WindowLen = %d, want 1", got)
	}
}

func TestOnAckIgnoresDuplicateOrOldAck(t *testing.T) {
	s, _ := newTestSender(t, 4)
	s.Send([]byte("aaaa"))
	s.onAck(rdt.Segment{Header: rdt.Header{AckNum: 4, Flags: rdt.FlagACK}})
	s.onAck(rdt.Segment{Header: rdt.Header{AckNum: 4, Flags: rdt.FlagACK}})
	if got := s.SendBase(); got != 4 {
		t.Fatalf("SendBase = %d, want 4", got)
	}
}

func TestOnTimeoutRetransmitsOldestAndDoublesRTO(t *testing.T) {
	s, _ := newTestSender(t, 4)
	s.Send([]byte("aaaa"))
	before := s.CurrentRTO()
	s.onTimeout()
	if got := s.RetransmitCount(); got != 1 {
		t.Fatalf("RetransmitCount = %d, want 1", got)
	}
	if after := s.CurrentRTO(); after <= before {
		t.Fatalf("CurrentRTO did not increase after timeout: before=%v after=%v", before, after)
	}
}

func TestOnTimeoutNoopWhenWindowEmpty(t *testing.T) {
	s, _ := newTestSender(t, 4)
	s.onTimeout()
	if got := s.RetransmitCount(); got != 0 {
		t.Fatalf("RetransmitCount = %d, want 0", got)
	}
}

// waitForState polls s.State() until it reaches want, failing the test if it
// doesn't arrive within a couple seconds.
func waitForState(t *testing.T, s *Sender, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("State = %v, want %v (timed out)", s.State(), want)
}

func TestCloseDrivesTeardownToClosedViaEarlyAckConfirmation(t *testing.T) {
	s, pc := newTestSender(t, 4)
	closeErr := make(chan error, 1)
	go func() { closeErr <- s.Close() }()

	waitForState(t, s, FinWait1)
	// confirm our FIN (seq=0, step=1): FIN_WAIT_1 -> FIN_WAIT_2
	pc.deliver(rdt.Segment{Header: rdt.Header{AckNum: 1, Flags: rdt.FlagACK}})

	waitForState(t, s, FinWait2)
	// peer's FIN arrives: FIN_WAIT_2 -> TIME_WAIT, final ACK sent
	pc.deliver(rdt.Segment{Header: rdt.Header{SeqNum: 100, Flags: rdt.FlagFIN}})

	waitForState(t, s, TimeWait)
	// peer confirms the final ACK (seq=1, step=1) well before the 30s
	// CLOSE_WAIT_TIME deadline: TIME_WAIT -> CLOSED immediately.
	pc.deliver(rdt.Segment{Header: rdt.Header{AckNum: 2, Flags: rdt.FlagACK}})

	select {
	case err := <-closeErr:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return promptly after the confirming ACK")
	}
	if got := s.State(); got != Closed {
		t.Fatalf("State = %v, want Closed", got)
	}
}

func TestCloseResendsFinalAckOnDuplicateFinInTimeWait(t *testing.T) {
	s, pc := newTestSender(t, 4)
	closeErr := make(chan error, 1)
	go func() { closeErr <- s.Close() }()

	waitForState(t, s, FinWait1)
	pc.deliver(rdt.Segment{Header: rdt.Header{AckNum: 1, Flags: rdt.FlagACK}})

	waitForState(t, s, FinWait2)
	pc.deliver(rdt.Segment{Header: rdt.Header{SeqNum: 100, Flags: rdt.FlagFIN}})

	waitForState(t, s, TimeWait)
	// peer never saw our final ACK and retransmits its FIN; we should stay
	// in TIME_WAIT and resend rather than crash or advance state.
	pc.deliver(rdt.Segment{Header: rdt.Header{SeqNum: 100, Flags: rdt.FlagFIN}})
	time.Sleep(20 * time.Millisecond)
	if got := s.State(); got != TimeWait {
		t.Fatalf("State = %v, want TimeWait after duplicate FIN", got)
	}

	// now the confirming ACK arrives, completing the teardown.
	pc.deliver(rdt.Segment{Header: rdt.Header{AckNum: 2, Flags: rdt.FlagACK}})
	select {
	case err := <-closeErr:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the confirming ACK")
	}
}
