// Command rdtsend transfers a file to a waiting rdtrecv peer over a
// (possibly lossy) UDP substrate, using the sliding-window protocol
// implemented by the sender package.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"

	"github.com/jasonyux/tcp-over-udp/internal"
	"github.com/jasonyux/tcp-over-udp/rdt"
	"github.com/jasonyux/tcp-over-udp/rdtmetrics"
	"github.com/jasonyux/tcp-over-udp/sender"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func exitCodeFor(err error) int {
	if _, ok := err.(*usageError); ok {
		return 2
	}
	return 1
}

func run() error {
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, e.g. :9101 (disabled if empty)")
	loglevel := flag.String("loglevel", "info", "debug|info|warn|error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] file udpl_addr udpl_port window_size ack_port\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 5 {
		flag.Usage()
		return &usageError{"expected 5 positional arguments"}
	}
	filePath, udplAddr, udplPortStr, windowSizeStr, ackPortStr := args[0], args[1], args[2], args[3], args[4]

	f, err := os.Open(filePath)
	if err != nil {
		return &usageError{fmt.Sprintf("file: %v", err)}
	}
	defer f.Close()

	udplPort, err := strconv.Atoi(udplPortStr)
	if err != nil {
		return &usageError{fmt.Sprintf("udpl_port: %v", err)}
	}
	ackPort, err := strconv.Atoi(ackPortStr)
	if err != nil {
		return &usageError{fmt.Sprintf("ack_port: %v", err)}
	}
	windowSizeBytes, err := strconv.Atoi(windowSizeStr)
	if err != nil || windowSizeBytes <= 0 || windowSizeBytes%rdt.MSS != 0 {
		return &usageError{fmt.Sprintf("window_size must be a positive multiple of MSS (%d), got %q", rdt.MSS, windowSizeStr)}
	}
	windowSizeSegments := windowSizeBytes / rdt.MSS

	log, err := newLogger(*loglevel)
	if err != nil {
		return &usageError{err.Error()}
	}
	session := xid.New().String()
	log = log.With(slog.String("session", session))

	pconn, err := net.ListenUDP("udp", &net.UDPAddr{Port: ackPort})
	if err != nil {
		return fmt.Errorf("listen for acks: %w", err)
	}
	defer pconn.Close()

	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(udplAddr, strconv.Itoa(udplPort)))
	if err != nil {
		return fmt.Errorf("resolve udpl address: %w", err)
	}

	conn := rdt.NewConn(pconn, remote, log)
	snd := sender.New(conn, windowSizeSegments, log)

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(rdtmetrics.NewSenderCollector(snd, session))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", slog.String("err", err.Error()))
			}
		}()
		defer srv.Close()
	}

	snd.Start()
	return sendFile(snd, f, log)
}

// sendFile admits the file's bytes onto the sender's sliding window in
// MSS-sized chunks, backing off on ErrWindowFull, then closes the sender.
func sendFile(snd *sender.Sender, f *os.File, log *slog.Logger) error {
	r := bufio.NewReaderSize(f, rdt.MSS)
	buf := make([]byte, rdt.MSS)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if sendErr := sendChunk(snd, buf[:n]); sendErr != nil {
				return sendErr
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
	}
	log.Info("transfer admitted, closing")
	return snd.Close()
}

func sendChunk(snd *sender.Sender, chunk []byte) error {
	payload := append([]byte(nil), chunk...)
	backoff := internal.NewPoller(200 * time.Millisecond)
	for {
		err := snd.Send(payload)
		if err == nil {
			return nil
		}
		if err == sender.ErrWindowFull {
			backoff.Wait()
			continue
		}
		return err
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("loglevel: %w", err)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h), nil
}
