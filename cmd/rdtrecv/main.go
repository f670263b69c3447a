// Command rdtrecv listens for an rdtsend peer's transfer and writes the
// delivered bytes to a local file, using the protocol implemented by the
// receiver package.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"

	"github.com/jasonyux/tcp-over-udp/rdt"
	"github.com/jasonyux/tcp-over-udp/rdtmetrics"
	"github.com/jasonyux/tcp-over-udp/receiver"
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
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on, e.g. :9102 (disabled if empty)")
	loglevel := flag.String("loglevel", "info", "debug|info|warn|error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] file lstn_port ack_addr ack_port\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 4 {
		flag.Usage()
		return &usageError{"expected 4 positional arguments"}
	}
	filePath, lstnPortStr, ackAddr, ackPortStr := args[0], args[1], args[2], args[3]

	lstnPort, err := strconv.Atoi(lstnPortStr)
	if err != nil || lstnPort < 1 || lstnPort > 65535 {
		return &usageError{fmt.Sprintf("lstn_port must be in [1,65535], got %q", lstnPortStr)}
	}
	ackPort, err := strconv.Atoi(ackPortStr)
	if err != nil || ackPort < 1 || ackPort > 65535 {
		return &usageError{fmt.Sprintf("ack_port must be in [1,65535], got %q", ackPortStr)}
	}

	sink, err := receiver.OpenSink(filePath)
	if err != nil {
		return &usageError{fmt.Sprintf("file: %v", err)}
	}
	defer sink.Close()

	log, err := newLogger(*loglevel)
	if err != nil {
		return &usageError{err.Error()}
	}
	session := xid.New().String()
	log = log.With(slog.String("session", session))

	pconn, err := net.ListenUDP("udp", &net.UDPAddr{Port: lstnPort})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer pconn.Close()

	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ackAddr, strconv.Itoa(ackPort)))
	if err != nil {
		return fmt.Errorf("resolve ack address: %w", err)
	}

	conn := rdt.NewConn(pconn, remote, log)
	rcv := receiver.New(conn, sink, log)

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(rdtmetrics.NewReceiverCollector(rcv, session))
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

	if err := rcv.Run(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	log.Info("transfer complete")
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("loglevel: %w", err)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h), nil
}
