// Package link implements the framed duplex transport between two peers: a
// pair of plain TCP sockets (one outbound, one inbound) presenting a single
// bidirectional stream of length-prefixed messages.
package link

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/zerolog"
)

// MaxRetries is the number of outbound connect attempts before giving up.
const MaxRetries = 3

// RetryDelay is the delay between outbound connect attempts.
const RetryDelay = 5 * time.Second

// recvChunkSize bounds a single read(2) call while draining one frame body.
// This is a performance knob, not a correctness contract.
const recvChunkSize = 1024

// ErrClosed is returned by GetMessage once the link has been closed or the
// peer has disconnected.
var ErrClosed = errors.New("link: connection closed")

// ErrFrameTooLarge is returned by the receive loop when a claimed frame
// length exceeds the link's maximum frame size; the link then shuts down
// and GetMessage returns this error instead of ErrClosed.
var ErrFrameTooLarge = errors.New("link: framed message exceeds configured maximum size")

// DefaultMaxFrameSize bounds how large a single framed message is allowed
// to be, guarding against a corrupt or hostile length prefix exhausting
// memory.
const DefaultMaxFrameSize = 64 << 20 // 64 MiB

// Link is a pair of TCP sockets presenting a duplex, length-prefixed
// message stream. One Link is owned exclusively by one sender and one
// receiver goroutine; its send and receive paths use separate sockets and
// so never contend with each other.
type Link struct {
	peerIP     string
	sendPort   int
	recvPort   int
	maxFrame   int
	log        zerolog.Logger
	metricsTag string

	sendMu   sync.Mutex
	sendConn net.Conn

	listener net.Listener
	recvConn net.Conn

	queue *messageQueue

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial constructs a Link to peerIP, sending on sendPort and receiving on
// recvPort. It binds the receive listener and dials the send socket
// concurrently, and only returns once both sides are established.
func Dial(ctx context.Context, log zerolog.Logger, peerIP string, sendPort, recvPort int) (*Link, error) {
	l := &Link{
		peerIP:     peerIP,
		sendPort:   sendPort,
		recvPort:   recvPort,
		maxFrame:   DefaultMaxFrameSize,
		log:        log.With().Str("component", "link").Int("send_port", sendPort).Int("recv_port", recvPort).Logger(),
		metricsTag: fmt.Sprintf(`send_port="%d",recv_port="%d"`, sendPort, recvPort),
		queue:      newMessageQueue(),
		closed:     make(chan struct{}),
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", recvPort))
	if err != nil {
		return nil, fmt.Errorf("link: listen on port %d: %w", recvPort, err)
	}
	l.listener = listener

	var acceptConn net.Conn
	var acceptErr error
	var dialConn net.Conn
	var dialErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptConn, acceptErr = listener.Accept()
	}()
	go func() {
		defer wg.Done()
		dialConn, dialErr = dialWithRetry(ctx, l.log, peerIP, sendPort)
	}()
	wg.Wait()

	if acceptErr != nil {
		if dialConn != nil {
			dialConn.Close()
		}
		listener.Close()
		return nil, fmt.Errorf("link: accept on port %d: %w", recvPort, acceptErr)
	}
	if dialErr != nil {
		acceptConn.Close()
		listener.Close()
		return nil, fmt.Errorf("link: connect to %s:%d: %w", peerIP, sendPort, dialErr)
	}

	l.recvConn = acceptConn
	l.sendConn = dialConn

	l.log.Info().Msg("link established")

	go l.receiveLoop()

	return l, nil
}

func dialWithRetry(ctx context.Context, log zerolog.Logger, peerIP string, port int) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", peerIP, port)
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("connect attempt failed")
		if attempt == MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RetryDelay):
		}
	}
	return nil, fmt.Errorf("link: connect failed after %d attempts: %w", MaxRetries, lastErr)
}

// SendMessage writes a length-prefixed frame to the outbound socket. It is
// safe to call concurrently; calls are serialized so frame boundaries are
// never interleaved.
func (l *Link) SendMessage(data []byte) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))

	if _, err := l.sendConn.Write(prefix[:]); err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`pictowire_link_send_errors_total{%s}`, l.metricsTag)).Inc()
		return fmt.Errorf("link: write length prefix: %w", err)
	}
	if _, err := l.sendConn.Write(data); err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`pictowire_link_send_errors_total{%s}`, l.metricsTag)).Inc()
		return fmt.Errorf("link: write payload: %w", err)
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`pictowire_link_sent_messages_total{%s}`, l.metricsTag)).Inc()
	metrics.GetOrCreateCounter(fmt.Sprintf(`pictowire_link_sent_bytes_total{%s}`, l.metricsTag)).Add(len(data))
	return nil
}

// SendFile reads path in full and sends it as a single framed message.
func (l *Link) SendFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("link: read file: %w", err)
	}
	return l.SendMessage(data)
}

// GetMessage blocks until a complete framed message is available and
// returns its payload, or returns ErrClosed once the link has been closed
// or the peer has disconnected.
func (l *Link) GetMessage(ctx context.Context) ([]byte, error) {
	return l.queue.get(ctx)
}

// GetFile blocks for the next framed message and writes it to path.
func (l *Link) GetFile(ctx context.Context, path string) error {
	data, err := l.GetMessage(ctx)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// receiveLoop reads frames off recvConn until a short read or framing
// error terminates it, then closes the link.
func (l *Link) receiveLoop() {
	defer l.Close()

	for {
		prefix, err := l.recvExactly(4)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				l.log.Debug().Err(err).Msg("receive loop: read length prefix")
			}
			return
		}
		length := binary.BigEndian.Uint32(prefix)
		if int(length) > l.maxFrame {
			l.log.Warn().Uint32("length", length).Msg("rejecting oversized frame")
			l.queue.closeWithErr(ErrFrameTooLarge)
			return
		}

		body, err := l.recvExactly(int(length))
		if err != nil {
			l.log.Debug().Err(err).Msg("receive loop: read payload")
			return
		}

		metrics.GetOrCreateCounter(fmt.Sprintf(`pictowire_link_received_messages_total{%s}`, l.metricsTag)).Inc()
		metrics.GetOrCreateCounter(fmt.Sprintf(`pictowire_link_received_bytes_total{%s}`, l.metricsTag)).Add(len(body))

		l.queue.put(body)
	}
}

// recvExactly reads exactly size bytes from recvConn, in chunks of at most
// recvChunkSize. It returns io.EOF if the peer closes before any byte of
// the read arrives, and a wrapped error if the read is cut off part way.
func (l *Link) recvExactly(size int) ([]byte, error) {
	data := make([]byte, 0, size)
	for len(data) < size {
		chunk := size - len(data)
		if chunk > recvChunkSize {
			chunk = recvChunkSize
		}
		buf := make([]byte, chunk)
		n, err := l.recvConn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if err != nil {
			if len(data) == 0 && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("link: %w", err)
		}
		if n == 0 {
			return nil, io.EOF
		}
	}
	return data, nil
}

// Close shuts both sockets and the listener and unblocks any pending
// GetMessage call. It is idempotent.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		l.queue.closeWithErr(ErrClosed)
		if l.sendConn != nil {
			l.sendConn.Close()
		}
		if l.recvConn != nil {
			l.recvConn.Close()
		}
		if l.listener != nil {
			l.listener.Close()
		}
		l.log.Info().Msg("link closed")
	})
	return err
}
