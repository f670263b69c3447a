package sender

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonyux/tcp-over-udp/internal"
	"github.com/jasonyux/tcp-over-udp/rdt"
)

const (
	// closeWaitTime bounds TIME_WAIT, per spec.
	closeWaitTime = 30 * time.Second
	// pollInterval is the sender teardown loop's fixed poll cadence.
	pollInterval = time.Second
)

// Sender is a single in-flight file transfer's sending half: it admits
// payload chunks onto a bounded sliding window, retransmits on RTO expiry,
// and drives the active-close teardown handshake on Close.
//
// window/unsampled are mutated by both Send (the caller's goroutine) and
// the background receive loop started by Start; windowMu serializes both.
// The socket read itself is serialized by rcvMu so the teardown loop can
// steal inbound reads from the background loop once it stops consuming.
type Sender struct {
	conn       *rdt.Conn
	windowSize int

	windowMu  sync.Mutex
	window    []rdt.Segment
	unsampled map[rdt.Value]time.Time
	seqNum    rdt.Value
	sendBase  rdt.Value
	finSeq    rdt.Value

	timer *rdt.Timer
	rtt   *rdt.RTTEstimator

	stateMu sync.Mutex
	state   State

	rcvMu       sync.Mutex
	finOverflow []rdt.Segment

	finalAckSeq rdt.Value

	retransmits atomic.Uint64

	recvDone chan struct{}

	rdt.Logger
}

// New builds a Sender bound to conn with a window of windowSizeSegments
// in-flight segments. log may be nil.
func New(conn *rdt.Conn, windowSizeSegments int, log *slog.Logger) *Sender {
	s := &Sender{
		conn:       conn,
		windowSize: windowSizeSegments,
		unsampled:  make(map[rdt.Value]time.Time),
		rtt:        rdt.NewRTTEstimator(),
		recvDone:   make(chan struct{}),
		Logger:     rdt.Logger{Log: log},
	}
	s.timer = rdt.NewTimer(s.onTimeout)
	return s
}

// Start launches the background goroutine that consumes inbound ACKs for
// the lifetime of the ESTABLISHED state.
func (s *Sender) Start() {
	go s.runReceiveLoop()
}

// State returns the sender's current teardown-lifecycle state.
func (s *Sender) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Sender) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
	s.Debug("sender:state", slog.String("state", st.String()))
}

// SendBase returns the smallest unacknowledged seq_num.
func (s *Sender) SendBase() rdt.Value {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	return s.sendBase
}

// SeqNum returns the next seq_num to be assigned.
func (s *Sender) SeqNum() rdt.Value {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	return s.seqNum
}

// WindowLen returns the number of in-flight segments.
func (s *Sender) WindowLen() int {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	return len(s.window)
}

// RetransmitCount returns the number of retransmitted segments so far.
func (s *Sender) RetransmitCount() uint64 { return s.retransmits.Load() }

// CurrentRTO returns the RTT estimator's current retransmission timeout.
func (s *Sender) CurrentRTO() time.Duration { return s.rtt.CurrentRTO() }

// Send admits payload as a new data segment. It fails with ErrWindowFull if
// the window already holds windowSizeSegments in-flight segments, and with
// ErrClosed once the sender has left ESTABLISHED.
func (s *Sender) Send(payload []byte) error {
	if s.State() != Established {
		return ErrClosed
	}
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	if len(s.window) >= s.windowSize {
		return ErrWindowFull
	}
	seg := rdt.Segment{
		Header:  rdt.Header{SeqNum: s.seqNum},
		Payload: payload,
	}
	if err := s.conn.SendSegment(seg); err != nil {
		return err
	}
	step := seg.Step()
	expectedAck := s.seqNum + step
	s.window = append(s.window, seg)
	s.seqNum += step
	if !s.timer.IsAlive() {
		s.timer.Start(s.rtt.CurrentRTO())
	}
	s.unsampled[expectedAck] = time.Now()
	return nil
}

// runReceiveLoop is the background "receive thread": it owns rcvMu-guarded
// socket reads for as long as the sender is ESTABLISHED, re-checking state
// on every short-timeout iteration. Once state has left ESTABLISHED any
// segment it still captures is handed off to finOverflow for the teardown
// loop to pick up, implementing the hand-off invariant.
func (s *Sender) runReceiveLoop() {
	defer close(s.recvDone)
	for s.State() == Established {
		s.rcvMu.Lock()
		seg, err := s.conn.ReceiveSegmentTimeout(time.Now().Add(200 * time.Millisecond))
		s.rcvMu.Unlock()
		if err != nil {
			if errors.Is(err, rdt.ErrTimeout) {
				continue
			}
			return
		}
		if s.State() != Established {
			s.rcvMu.Lock()
			s.finOverflow = append(s.finOverflow, seg)
			s.rcvMu.Unlock()
			continue
		}
		s.onAck(seg)
	}
}

// onAck applies a verified inbound segment's cumulative ACK to the window.
func (s *Sender) onAck(seg rdt.Segment) {
	if !seg.Header.Flags.HasAny(rdt.FlagACK) {
		return
	}
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	if seg.Header.AckNum <= s.sendBase {
		return
	}
	s.sendBase = seg.Header.AckNum
	kept := s.window[:0]
	for _, w := range s.window {
		if w.Header.SeqNum >= s.sendBase {
			kept = append(kept, w)
		}
	}
	s.window = kept
	if len(s.window) > 0 {
		s.timer.Restart(s.rtt.CurrentRTO())
	} else {
		s.timer.Cancel()
	}
	if start, ok := s.unsampled[seg.Header.AckNum]; ok {
		s.rtt.Sample(time.Since(start))
		s.rtt.ClearDouble()
		delete(s.unsampled, seg.Header.AckNum)
	}
}

// onTimeout fires from the retransmission timer: it resends the oldest
// unacknowledged segment, doubles the RTO (Karn's rule: no sample is taken
// from a retransmitted segment), and restarts the timer.
func (s *Sender) onTimeout() {
	s.windowMu.Lock()
	defer s.windowMu.Unlock()
	if s.State() == Closed || len(s.window) == 0 {
		return
	}
	oldest := s.window[0]
	if err := s.conn.SendSegment(oldest); err != nil {
		s.Warn("sender:retransmit-failed", slog.String("err", err.Error()))
	} else {
		s.retransmits.Add(1)
	}
	s.rtt.Double()
	s.timer.Restart(s.rtt.CurrentRTO())
	for _, w := range s.window {
		delete(s.unsampled, w.Header.SeqNum+w.Step())
	}
}

// Close performs the active close: it blocks until the window has drained,
// sends a FIN, and drives the teardown state machine to CLOSED before
// closing the underlying socket. It returns ErrClosed if the sender has
// already left ESTABLISHED.
func (s *Sender) Close() error {
	if s.State() != Established {
		return ErrClosed
	}
	drainPoll := internal.NewPoller(pollInterval)
	for s.WindowLen() > 0 {
		drainPoll.Wait()
	}
	s.setState(BeginClose)

	s.windowMu.Lock()
	s.finSeq = s.seqNum
	finSeg := rdt.Segment{Header: rdt.Header{SeqNum: s.seqNum, Flags: rdt.FlagFIN}}
	if err := s.conn.SendSegment(finSeg); err != nil {
		s.windowMu.Unlock()
		return err
	}
	step := finSeg.Step()
	expectedAck := s.seqNum + step
	s.window = append(s.window, finSeg)
	s.seqNum += step
	if !s.timer.IsAlive() {
		s.timer.Start(s.rtt.CurrentRTO())
	}
	s.unsampled[expectedAck] = time.Now()
	s.windowMu.Unlock()

	s.setState(FinWait1)
	s.runTeardown()
	return s.conn.Close()
}

// nextTeardownSegment drains finOverflow before attempting its own
// poll-interval-bounded socket read, per the hand-off invariant.
func (s *Sender) nextTeardownSegment() (rdt.Segment, bool) {
	s.rcvMu.Lock()
	if len(s.finOverflow) > 0 {
		seg := s.finOverflow[0]
		s.finOverflow = s.finOverflow[1:]
		s.rcvMu.Unlock()
		return seg, true
	}
	seg, err := s.conn.ReceiveSegmentTimeout(time.Now().Add(pollInterval))
	s.rcvMu.Unlock()
	if err != nil {
		return rdt.Segment{}, false
	}
	return seg, true
}

func (s *Sender) runTeardown() {
	var timeWaitDeadline time.Time
	for {
		state := s.State()
		if state == Closed {
			return
		}
		if state == TimeWait && !timeWaitDeadline.IsZero() && time.Now().After(timeWaitDeadline) {
			s.timer.Cancel()
			s.setState(Closed)
			return
		}
		seg, ok := s.nextTeardownSegment()
		if !ok {
			continue
		}
		switch state {
		case FinWait1:
			if seg.Header.Flags.HasAny(rdt.FlagACK) && seg.Header.AckNum >= s.finSeq+1 {
				s.windowMu.Lock()
				s.window = s.window[:0]
				s.windowMu.Unlock()
				s.timer.Cancel()
				s.setState(FinWait2)
			}
		case FinWait2:
			if seg.Header.Flags.HasAny(rdt.FlagFIN) {
				s.sendFinalAck(seg)
				timeWaitDeadline = time.Now().Add(closeWaitTime)
				s.setState(TimeWait)
			}
		case TimeWait:
			if seg.Header.Flags.HasAny(rdt.FlagFIN) {
				// peer's retransmitted FIN means our final ACK was lost.
				s.sendFinalAck(seg)
			} else if seg.Header.Flags.HasAny(rdt.FlagACK) && seg.Header.AckNum >= s.finalAckSeq+1 {
				s.timer.Cancel()
				s.setState(Closed)
				return
			}
		}
	}
}

func (s *Sender) sendFinalAck(fin rdt.Segment) {
	ack := rdt.Segment{Header: rdt.Header{
		SeqNum: s.seqNum,
		AckNum: fin.Header.SeqNum + fin.Step(),
		Flags:  rdt.FlagACK,
	}}
	s.finalAckSeq = ack.Header.SeqNum
	if err := s.conn.SendSegment(ack); err != nil {
		s.Warn("sender:final-ack-failed", slog.String("err", err.Error()))
	}
}
