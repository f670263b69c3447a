package receiver

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jasonyux/tcp-over-udp/rdt"
)

// teardownPoll is the receiver teardown loop's fixed poll cadence.
const teardownPoll = 200 * time.Millisecond

// Receiver is one LISTEN-to-CLOSED cycle's worth of encapsulated delivery
// state: the cumulative-ACK reorder bookkeeping, the (separately tracked)
// file-delivery pending set, and the passive-close teardown handshake.
// Unlike the reference implementation, this state lives on the instance,
// not as process-wide globals, so multiple Receivers can coexist.
//
// A Receiver runs on a single goroutine: there is no background receive
// thread as on the sender side, since the receiver's main loop is already
// the only reader of the socket.
type Receiver struct {
	conn *rdt.Conn
	sink Sink

	mu            sync.Mutex
	seqNum        rdt.Value
	ackNum        rdt.Value
	reorder       []rdt.Segment // cumulative-ACK bookkeeping
	pending       []rdt.Segment // file-delivery bookkeeping, tracked separately
	deliveredUpTo rdt.Value
	finSeq        rdt.Value
	finPackets    map[rdt.Value]rdt.Segment

	state State

	droppedStale atomic.Uint64 // segments below deliveredUpTo
	droppedDup   atomic.Uint64 // exact-duplicate segments already pending

	rdt.Logger
}

// New builds a Receiver bound to conn, delivering payloads into sink. It
// starts in LISTEN. log may be nil.
func New(conn *rdt.Conn, sink Sink, log *slog.Logger) *Receiver {
	return &Receiver{
		conn:       conn,
		sink:       sink,
		finPackets: make(map[rdt.Value]rdt.Segment),
		state:      Listen,
		Logger:     rdt.Logger{Log: log},
	}
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.Debug("receiver:state", slog.String("state", s.String()))
}

// AckNum returns the next in-order byte this receiver expects.
func (r *Receiver) AckNum() rdt.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ackNum
}

// DeliveredUpTo returns the delivered frontier: the offset just past the
// last byte written to the sink so far.
func (r *Receiver) DeliveredUpTo() rdt.Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliveredUpTo
}

// ReorderLen returns the number of segments held for cumulative-ACK
// computation pending a gap fill.
func (r *Receiver) ReorderLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reorder)
}

// DroppedStale returns the count of segments discarded because they lay
// below the delivered frontier (deliveredUpTo) already advanced past them.
func (r *Receiver) DroppedStale() uint64 { return r.droppedStale.Load() }

// DroppedDuplicate returns the count of segments discarded because an
// identical seq_num was already held pending delivery.
func (r *Receiver) DroppedDuplicate() uint64 { return r.droppedDup.Load() }

// Run drives one full transfer: it transitions LISTEN -> ESTABLISHED,
// consumes segments until the passive-close handshake completes, then
// resets to LISTEN. It returns when the transfer reaches CLOSED, or
// ErrClosed once the underlying socket is closed out from under it, letting
// a background caller distinguish a deliberate shutdown from a genuine I/O
// failure without reaching into the net package itself.
func (r *Receiver) Run() error {
	r.setState(Established)
	for r.State() == Established {
		seg, err := r.conn.ReceiveSegment()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrClosed
			}
			return err
		}
		r.onData(seg)
	}
	r.reset()
	return nil
}

// onData applies a verified inbound segment: it folds the segment into the
// cumulative-ACK bookkeeping, attempts delivery, and then either enters the
// passive-close handshake (if this segment's FIN completes the stream) or
// answers with a cumulative ACK carrying the new ack_num.
func (r *Receiver) onData(seg rdt.Segment) {
	r.mu.Lock()
	r.updateAck(seg)
	ackNum := r.ackNum
	r.mu.Unlock()

	r.deliver(seg)

	if seg.Header.Flags.HasAny(rdt.FlagFIN) && seg.Header.SeqNum+1 >= ackNum {
		r.handleClose(seg)
		return
	}
	r.send(rdt.FlagACK)
}

// updateAck must be called with r.mu held. It implements the
// cumulative-ACK computation: segments older than the current ack_num, or
// already held in the reorder set, are ignored (the stale ones are counted
// once, by deliver), a leading gap leaves ack_num unchanged, and otherwise the
// contiguous-prefix helper advances ack_num past the longest gap-free run.
// LongestPrefix's pop=true contract keeps the run's anchor in rest, but this
// receiver tracks ack_num itself rather than re-deriving it from the
// surviving set, so the now-stale anchor (and anything else at or below the
// new ack_num) is pruned before the set is stored back; otherwise it would
// poison the next call's match at the very first (smallest-key) element.
func (r *Receiver) updateAck(seg rdt.Segment) {
	if seg.Header.SeqNum < r.ackNum {
		return
	}
	for _, s := range r.reorder {
		if s.Header.SeqNum == seg.Header.SeqNum {
			return
		}
	}
	r.reorder = append(r.reorder, seg)
	minSeq := r.reorder[0].Header.SeqNum
	for _, s := range r.reorder {
		if s.Header.SeqNum < minSeq {
			minSeq = s.Header.SeqNum
		}
	}
	if minSeq > r.ackNum {
		return
	}
	last, rest, ok := rdt.LongestPrefix(r.reorder, segKey, segStep, r.ackNum, true)
	if !ok {
		return
	}
	r.ackNum = last.Header.SeqNum + last.Step()
	kept := rest[:0]
	for _, s := range rest {
		if s.Header.SeqNum >= r.ackNum {
			kept = append(kept, s)
		}
	}
	r.reorder = kept
}

// deliver implements the separate file-delivery routine: it maintains its
// own pending set (independent of the ACK reorder set), finds that set's
// longest leading contiguous run, and writes it to the sink once that run
// reaches back to the delivered frontier. Late segments below the frontier,
// and duplicates of a segment already pending, are dropped idempotently.
func (r *Receiver) deliver(seg rdt.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seg.Header.SeqNum < r.deliveredUpTo {
		r.droppedStale.Add(1)
		return
	}
	for _, p := range r.pending {
		if p.Header.SeqNum == seg.Header.SeqNum {
			r.droppedDup.Add(1)
			return
		}
	}
	r.pending = append(r.pending, seg)

	minSeq := r.pending[0].Header.SeqNum
	for _, p := range r.pending {
		if p.Header.SeqNum < minSeq {
			minSeq = p.Header.SeqNum
		}
	}
	_, run, ok := rdt.LongestPrefix(r.pending, segKey, segStep, minSeq, false)
	if !ok || run[0].Header.SeqNum > r.deliveredUpTo {
		return
	}

	for _, s := range run {
		if s.Header.SeqNum < r.deliveredUpTo {
			continue
		}
		if _, err := r.sink.WriteAt(s.Payload, int64(s.Header.SeqNum)); err != nil {
			r.Warn("receiver:write-failed", slog.String("err", err.Error()))
			continue
		}
	}
	newFrontier := run[len(run)-1].Header.SeqNum + run[len(run)-1].Step()
	if newFrontier > r.deliveredUpTo {
		r.deliveredUpTo = newFrontier
	}
	kept := r.pending[:0]
	for _, p := range r.pending {
		if p.Header.SeqNum >= r.deliveredUpTo {
			kept = append(kept, p)
		}
	}
	r.pending = kept
}

func segKey(s rdt.Segment) rdt.Value { return s.Header.SeqNum }
func segStep(s rdt.Segment) rdt.Size { return s.Step() }

// send builds, transmits and accounts for an outgoing control segment
// carrying no payload, with the given flags set.
func (r *Receiver) send(flags rdt.Flags) rdt.Segment {
	r.mu.Lock()
	seg := rdt.Segment{Header: rdt.Header{SeqNum: r.seqNum, AckNum: r.ackNum, Flags: flags}}
	r.seqNum += seg.Step()
	r.mu.Unlock()
	if err := r.conn.SendSegment(seg); err != nil {
		r.Warn("receiver:send-failed", slog.String("err", err.Error()))
	}
	return seg
}

// handleClose drives the passive-close handshake once an in-order FIN has
// been observed: ACK the FIN, send our own FIN, then wait for its ACK.
func (r *Receiver) handleClose(finSeg rdt.Segment) {
	r.setState(CloseWait)
	ackSeg := r.send(rdt.FlagACK)
	r.mu.Lock()
	r.finPackets[finSeg.Header.SeqNum] = ackSeg
	r.mu.Unlock()

	finOut := r.send(rdt.FlagFIN)
	r.mu.Lock()
	r.finSeq = finOut.Header.SeqNum
	r.mu.Unlock()

	r.setState(LastAck)
	r.waitFinAck()
}

// waitFinAck polls for the peer's ACK of our FIN. A duplicate inbound FIN
// (the peer never saw our FIN-ACK) triggers a resend of the cached ACK we
// sent for it rather than recomputing a possibly-advanced one.
func (r *Receiver) waitFinAck() {
	r.mu.Lock()
	finSeq := r.finSeq
	r.mu.Unlock()

	for r.State() == LastAck {
		seg, err := r.conn.ReceiveSegmentTimeout(time.Now().Add(teardownPoll))
		if err != nil {
			continue
		}
		if seg.Header.Flags.HasAny(rdt.FlagFIN) {
			r.mu.Lock()
			cached, ok := r.finPackets[seg.Header.SeqNum]
			r.mu.Unlock()
			if ok {
				if err := r.conn.SendSegment(cached); err != nil {
					r.Warn("receiver:resend-fin-ack-failed", slog.String("err", err.Error()))
				}
			}
			continue
		}
		if seg.Header.Flags.HasAny(rdt.FlagACK) && seg.Header.AckNum >= finSeq+1 {
			r.send(rdt.FlagACK)
			r.setState(Closed)
			return
		}
	}
}

// reset clears all per-transfer state and returns the receiver to LISTEN,
// ready to service a new transfer on the same socket.
func (r *Receiver) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqNum = 0
	r.ackNum = 0
	r.reorder = nil
	r.pending = nil
	r.deliveredUpTo = 0
	r.finSeq = 0
	r.finPackets = make(map[rdt.Value]rdt.Segment)
	r.state = Listen
}
