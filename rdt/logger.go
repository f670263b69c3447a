package rdt

import (
	"log/slog"

	"github.com/jasonyux/tcp-over-udp/internal"
)

// Logger embeds an optional *slog.Logger and exposes the trace/debug/warn
// helper methods used by sender.Sender and receiver.Receiver. A zero Logger
// (nil *slog.Logger) silently discards everything, so embedding it costs
// nothing when logging is not configured.
type Logger struct {
	Log *slog.Logger
}

func (l *Logger) enabled(lvl slog.Level) bool {
	return internal.LogEnabled(l.Log, lvl)
}

func (l *Logger) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.Log, lvl, msg, attrs...)
}

func (l *Logger) Trace(msg string, attrs ...slog.Attr) { l.logAttrs(internal.LevelTrace, msg, attrs...) }
func (l *Logger) Debug(msg string, attrs ...slog.Attr)  { l.logAttrs(slog.LevelDebug, msg, attrs...) }
func (l *Logger) Info(msg string, attrs ...slog.Attr)   { l.logAttrs(slog.LevelInfo, msg, attrs...) }
func (l *Logger) Warn(msg string, attrs ...slog.Attr)   { l.logAttrs(slog.LevelWarn, msg, attrs...) }
func (l *Logger) Error(msg string, attrs ...slog.Attr)  { l.logAttrs(slog.LevelError, msg, attrs...) }

// TraceSegment logs a per-segment trace line, mirroring the field set the
// sender and receiver both care about. Building the attrs is skipped
// entirely when trace logging is not enabled.
func (l *Logger) TraceSegment(msg string, seg Segment) {
	if !l.enabled(internal.LevelTrace) {
		return
	}
	l.Trace(msg,
		slog.Uint64("seg.seq", uint64(seg.Header.SeqNum)),
		slog.Uint64("seg.ack", uint64(seg.Header.AckNum)),
		slog.String("seg.flags", seg.Header.Flags.String()),
		slog.Int("seg.len", len(seg.Payload)),
	)
}
