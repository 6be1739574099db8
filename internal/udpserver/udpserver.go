// Package udpserver is the UDP ingest transport: the read loop hands each
// datagram to a bounded queue without blocking, and a background consumer
// feeds the queue into the ingest pipeline. A burst beyond the queue's
// capacity drops packets (counted) rather than stalling the socket.
package udpserver

import (
	"bytes"
	"context"
	"net"

	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/schema"
)

// DefaultQueueSize is UDP_QUEUE_MAX's default.
const DefaultQueueSize = 4096

// Ingester is the subset of ingest.Pipeline this server depends on.
type Ingester interface {
	Ingest(raw []byte, context string) (*schema.Event, error)
}

// Metrics is the subset of metrics.Registry the server updates directly
// (the pipeline itself notes validated counts; the server notes receipt,
// queue-overflow drops, and drops of payloads the pipeline rejects).
type Metrics interface {
	NoteUDPReceived()
	NoteDropped()
}

// Server listens for UDP datagrams and feeds them through an Ingester via
// a bounded handoff queue, so a burst of packets never blocks the socket
// read loop — packets are dropped (and counted) instead.
type Server struct {
	addr     string
	queue    chan []byte
	ingester Ingester
	metrics  Metrics
	log      zerolog.Logger

	conn *net.UDPConn
}

// Option configures a Server at construction.
type Option func(*Server)

func WithQueueSize(n int) Option { return func(s *Server) { s.queue = make(chan []byte, n) } }

// New constructs a Server bound to addr (host:port, e.g. ":9999").
func New(addr string, ingester Ingester, metrics Metrics, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		queue:    make(chan []byte, DefaultQueueSize),
		ingester: ingester,
		metrics:  metrics,
		log:      log.With().Str("component", "udpserver").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run opens the UDP socket, starts the consumer goroutine, and reads
// datagrams until ctx is cancelled. It blocks until the socket is closed.
func (s *Server) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	s.conn = conn

	go s.consume(ctx)

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn().Err(err).Msg("udp read error")
				return err
			}
		}
		s.metrics.NoteUDPReceived()

		trimmed := bytes.TrimSpace(buf[:n])
		if len(trimmed) == 0 {
			continue
		}
		packet := make([]byte, len(trimmed))
		copy(packet, trimmed)

		select {
		case s.queue <- packet:
		default:
			s.metrics.NoteDropped()
			s.log.Warn().Msg("udp queue full; dropping packet")
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// QueueDepth reports the number of buffered packets awaiting the consumer.
func (s *Server) QueueDepth() int {
	return len(s.queue)
}

func (s *Server) consume(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-s.queue:
			if _, err := s.ingester.Ingest(raw, "udp"); err != nil {
				s.metrics.NoteDropped()
				s.log.Debug().Err(err).Str("payload", truncate(string(raw), 200)).Msg("udp payload rejected")
			}
		}
	}
}
