// Package pictowire wires together the framed link, key agreement,
// symmetric cipher, and carrier pipeline into a single encrypted socket
// exposing connect/send/receive/close.
package pictowire

import (
	"container/list"
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/pictowire/pictowire/pkg/aescbc"
	"github.com/pictowire/pictowire/pkg/carrier"
	"github.com/pictowire/pictowire/pkg/dh"
	"github.com/pictowire/pictowire/pkg/journal"
	"github.com/pictowire/pictowire/pkg/link"
)

// State is the encrypted socket's lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is raised by Send/Receive when the socket is not in the
// connected state.
var ErrNotConnected = fmt.Errorf("pictowire: socket not connected")

// Socket is a peer-to-peer encrypted messaging channel: two independent
// Links (one per direction), each preceded by its own unauthenticated DH
// handshake, carrying carrier-pipeline-encoded archives.
type Socket struct {
	cfg     Config
	log     zerolog.Logger
	journal *journal.DB

	mu    sync.Mutex
	state State

	sendQueue *byteQueue
	recvQueue *byteQueue

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Socket from cfg. It does not connect; call Connect to
// start the sender/receiver workers.
func New(cfg Config, log zerolog.Logger, j *journal.DB) *Socket {
	return &Socket{
		cfg:       cfg,
		log:       log.With().Str("component", "socket").Str("peer", cfg.PeerAddr).Logger(),
		journal:   j,
		state:     StateDisconnected,
		sendQueue: newByteQueue(),
		recvQueue: newByteQueue(),
	}
}

// Connect starts the sender and receiver workers and moves the socket to
// the connected state without waiting for them; link setup and the DH
// handshakes continue asynchronously. Send queues data before the sender
// worker's handshake completes, and Receive blocks until the receiver
// worker delivers a message. A link or handshake failure is logged by the
// worker that hit it and does not change the socket's state; Connect does
// not report it.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("pictowire: connect called in state %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.senderLoop(workerCtx)
	go s.receiverLoop(workerCtx)

	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()

	return nil
}

// Send enqueues data for transmission. It never blocks (bounded only by
// memory).
func (s *Socket) Send(data []byte) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateConnected {
		return ErrNotConnected
	}
	s.sendQueue.put(data)
	return nil
}

// Receive blocks until a decoded message is available or the socket is
// closed, in which case it returns ErrNotConnected.
func (s *Socket) Receive(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateConnected && state != StateClosing {
		return nil, ErrNotConnected
	}
	data, err := s.recvQueue.get(ctx)
	if err != nil {
		return nil, ErrNotConnected
	}
	return data, nil
}

// Close is idempotent. It stops both workers, closing both owned Links,
// and returns once they have exited or after a 1-second timeout.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateClosing {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.sendQueue.close()
	s.recvQueue.close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.log.Warn().Msg("workers did not exit within the close timeout")
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.log.Info().Msg("socket closed")
	return nil
}

// senderLoop constructs the sender-role Link and DH handshake, then
// repeatedly encodes and transmits queued plaintext.
func (s *Socket) senderLoop(ctx context.Context) {
	defer s.wg.Done()

	lnk, key, err := s.dialAndHandshakeSender(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sender handshake failed")
		return
	}
	defer lnk.Close()

	cipher := aescbc.New(dh.IntToBytes(key))
	opts := s.pipelineOptions()

	for {
		data, err := s.sendQueue.get(ctx)
		if err != nil {
			return
		}

		recID, hasRecID := s.beginJournal(ctx, journal.DirectionSend)

		archive, err := carrier.Encode(opts, cipher, data)
		if err != nil {
			s.log.Warn().Err(err).Msg("encode pipeline failed, dropping message")
			metrics.GetOrCreateCounter(`pictowire_pipeline_encode_errors_total`).Inc()
			s.finishJournal(ctx, recID, hasRecID, 0, 0, journal.OutcomeFailed, "encode")
			continue
		}

		if err := lnk.SendMessage(archive); err != nil {
			s.log.Error().Err(err).Msg("failed to transmit archive, closing sender link")
			s.finishJournal(ctx, recID, hasRecID, len(archive), opts.Rows*opts.Cols, journal.OutcomeFailed, "transmit")
			return
		}

		s.finishJournal(ctx, recID, hasRecID, len(archive), opts.Rows*opts.Cols, journal.OutcomeSuccess, "")
		metrics.GetOrCreateCounter(`pictowire_messages_sent_total`).Inc()
	}
}

// receiverLoop constructs the receiver-role Link and DH handshake, then
// repeatedly receives and decodes archives into plaintext.
func (s *Socket) receiverLoop(ctx context.Context) {
	defer s.wg.Done()

	lnk, key, err := s.dialAndHandshakeReceiver(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("receiver handshake failed")
		return
	}
	defer lnk.Close()

	cipher := aescbc.New(dh.IntToBytes(key))
	opts := s.pipelineOptions()

	for {
		archive, err := lnk.GetMessage(ctx)
		if err != nil {
			return
		}

		recID, hasRecID := s.beginJournal(ctx, journal.DirectionReceive)

		plaintext, err := carrier.Decode(opts, cipher, archive)
		if err != nil {
			s.log.Warn().Err(err).Msg("decode pipeline failed, dropping message")
			metrics.GetOrCreateCounter(`pictowire_pipeline_decode_errors_total`).Inc()
			s.finishJournal(ctx, recID, hasRecID, len(archive), 0, journal.OutcomeFailed, "decode")
			continue
		}

		s.recvQueue.put(plaintext)
		s.finishJournal(ctx, recID, hasRecID, len(archive), opts.Rows*opts.Cols, journal.OutcomeSuccess, "")
		metrics.GetOrCreateCounter(`pictowire_messages_received_total`).Inc()
	}
}

// beginJournal records the start of a pipeline iteration, if a journal is
// configured. The returned bool reports whether a record was started, so
// callers can skip finishJournal cheaply when journaling is disabled.
func (s *Socket) beginJournal(ctx context.Context, dir journal.Direction) (xid.ID, bool) {
	if s.journal == nil {
		return xid.ID{}, false
	}
	id, err := s.journal.Begin(ctx, dir)
	if err != nil {
		s.log.Warn().Err(err).Msg("journal: failed to begin record")
		return xid.ID{}, false
	}
	return id, true
}

func (s *Socket) finishJournal(ctx context.Context, id xid.ID, has bool, byteSize, tileCount int, outcome journal.Outcome, stage string) {
	if !has {
		return
	}
	if err := s.journal.Finish(ctx, id, byteSize, tileCount, outcome, stage); err != nil {
		s.log.Warn().Err(err).Msg("journal: failed to finish record")
	}
}

func (s *Socket) pipelineOptions() carrier.Options {
	opts := carrier.DefaultOptions()
	opts.Rows = s.cfg.GridRows
	opts.Cols = s.cfg.GridCols
	opts.MaxContentLength = s.cfg.MaxContentLength
	opts.CoverWidth = s.cfg.CoverWidth
	opts.CoverHeight = s.cfg.CoverHeight
	if s.cfg.CoverImageAPIEndpoint != "" {
		opts.CoverSource = &carrier.HTTPCoverSource{
			Endpoint: s.cfg.CoverImageAPIEndpoint,
			APIKey:   s.cfg.CoverImageAPIKey,
		}
	}
	return opts
}

// dialAndHandshakeSender constructs the (out=SendPort,in=RecvPort) Link
// and plays the sender-role side of the DH handshake: send p, g, pub;
// receive the peer's pub; derive the shared key.
func (s *Socket) dialAndHandshakeSender(ctx context.Context) (*link.Link, *big.Int, error) {
	lnk, err := link.Dial(ctx, s.log, s.cfg.PeerAddr, s.cfg.SendPort, s.cfg.RecvPort)
	if err != nil {
		return nil, nil, fmt.Errorf("dial sender link: %w", err)
	}

	p, err := dh.RandomPrime()
	if err != nil {
		lnk.Close()
		return nil, nil, err
	}
	g, err := dh.PrimitiveRoot(p)
	if err != nil {
		lnk.Close()
		return nil, nil, err
	}
	priv, err := dh.RandomScalar()
	if err != nil {
		lnk.Close()
		return nil, nil, err
	}
	ep := dh.NewEndpoint(p, g, priv)
	pub := ep.PublicKey()

	if err := lnk.SendMessage(dh.IntToBytes(p)); err != nil {
		lnk.Close()
		return nil, nil, err
	}
	if err := lnk.SendMessage(dh.IntToBytes(g)); err != nil {
		lnk.Close()
		return nil, nil, err
	}
	if err := lnk.SendMessage(dh.IntToBytes(pub)); err != nil {
		lnk.Close()
		return nil, nil, err
	}

	hctx, hcancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer hcancel()
	peerPubBytes, err := lnk.GetMessage(hctx)
	if err != nil {
		lnk.Close()
		return nil, nil, fmt.Errorf("receive peer public key: %w", err)
	}
	peerPub := dh.BytesToInt(peerPubBytes)

	return lnk, ep.FullKey(peerPub), nil
}

// dialAndHandshakeReceiver constructs the (out=RecvPort,in=SendPort) Link
// and plays the receiver-role side of the handshake: receive p, g, peer's
// pub; send our own pub; derive the shared key.
func (s *Socket) dialAndHandshakeReceiver(ctx context.Context) (*link.Link, *big.Int, error) {
	lnk, err := link.Dial(ctx, s.log, s.cfg.PeerAddr, s.cfg.RecvPort, s.cfg.SendPort)
	if err != nil {
		return nil, nil, fmt.Errorf("dial receiver link: %w", err)
	}

	hctx, hcancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer hcancel()

	pBytes, err := lnk.GetMessage(hctx)
	if err != nil {
		lnk.Close()
		return nil, nil, fmt.Errorf("receive p: %w", err)
	}
	gBytes, err := lnk.GetMessage(hctx)
	if err != nil {
		lnk.Close()
		return nil, nil, fmt.Errorf("receive g: %w", err)
	}
	peerPubBytes, err := lnk.GetMessage(hctx)
	if err != nil {
		lnk.Close()
		return nil, nil, fmt.Errorf("receive peer public key: %w", err)
	}

	p := dh.BytesToInt(pBytes)
	g := dh.BytesToInt(gBytes)
	peerPub := dh.BytesToInt(peerPubBytes)

	priv, err := dh.RandomScalar()
	if err != nil {
		lnk.Close()
		return nil, nil, err
	}
	ep := dh.NewEndpoint(p, g, priv)
	pub := ep.PublicKey()

	if err := lnk.SendMessage(dh.IntToBytes(pub)); err != nil {
		lnk.Close()
		return nil, nil, err
	}

	return lnk, ep.FullKey(peerPub), nil
}

// byteQueue is an unbounded FIFO of byte slices with a blocking,
// context-aware get, used for the socket's public send/receive surface.
type byteQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  *list.List
	closed bool
}

func newByteQueue() *byteQueue {
	q := &byteQueue{items: list.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *byteQueue) put(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(data)
	q.cond.Signal()
}

func (q *byteQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

func (q *byteQueue) get(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if q.closed {
			return nil, fmt.Errorf("pictowire: queue closed")
		}
		q.cond.Wait()
	}
	front := q.items.Remove(q.items.Front())
	return front.([]byte), nil
}
