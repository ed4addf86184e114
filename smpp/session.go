// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fiorix/go-smpp/smpp/pdu"
	"github.com/fiorix/go-smpp/smpp/pdu/pdufield"

	"github.com/absmach/smppgate/pkg/errors"
	"github.com/absmach/smppgate/pkg/ticker"
)

// Session errors.
var (
	ErrSessionClosed   = errors.New("session closed")
	ErrBindFailed      = errors.New("bind rejected by peer")
	ErrResponseTimeout = errors.New("timed out waiting for response")
	ErrLinkDead        = errors.New("enquire_link went unanswered")
)

// Valid sequence numbers run 1..0x7FFFFFFF and then wrap.
const maxSequenceNumber = 0x7FFFFFFF

// sendQueueLen bounds the writer queue. Replies from the reader and
// submissions from the service share it.
const sendQueueLen = 128

// Handler receives the PDUs a bound session cannot resolve itself:
// deliver_sm requests and submit_sm responses. Both are correlated
// through the stash, not through in-session state, so a session may
// hand over traffic belonging to a predecessor.
type Handler interface {
	HandleDeliverSM(ctx context.Context, p pdu.Body) error
	HandleSubmitSMResp(ctx context.Context, p pdu.Body) error
}

// PrepareFunc runs on the writer goroutine after a sequence number is
// allocated and before the PDU is serialized. It is the only safe
// place to persist seq correlation state: an error skips the write.
type PrepareFunc func(ctx context.Context, seq uint32) error

// SessionConfig carries the bind and keepalive parameters of one
// session.
type SessionConfig struct {
	BindMode            BindMode
	SystemID            string
	Password            string
	SystemType          string
	InterfaceVersion    string
	AddressRange        string
	AddrTON             string
	AddrNPI             string
	EnquireLinkInterval time.Duration
	ResponseWindow      time.Duration
}

// SessionConfig extracts the session parameters of a transport config.
func (c TransportConfig) SessionConfig() SessionConfig {
	return SessionConfig{
		BindMode:            c.BindMode,
		SystemID:            c.SystemID,
		Password:            c.Password,
		SystemType:          c.SystemType,
		InterfaceVersion:    c.InterfaceVersion,
		AddressRange:        c.AddressRange,
		AddrTON:             c.AddrTON,
		AddrNPI:             c.AddrNPI,
		EnquireLinkInterval: c.EnquireLinkInterval,
		ResponseWindow:      c.ResponseWindow,
	}
}

type sendRequest struct {
	ctx context.Context
	p   pdu.Body
	// sequenced marks replies that carry the peer's sequence number;
	// everything else is numbered by the writer.
	sequenced bool
	prepare   PrepareFunc
	result    chan error
}

// Session drives one bound SMPP connection: it owns all reads and
// writes, numbers outbound requests, answers session-control traffic
// and routes the rest to the Handler. When the link dies for any
// reason Done is closed and Err reports why; a Session is never
// rebound — reconnecting means building a new one.
type Session struct {
	conn    net.Conn
	cfg     SessionConfig
	handler Handler
	clock   ticker.Clock
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	seq   uint32 // owned by the writer goroutine
	sendq chan *sendRequest

	mu      sync.Mutex
	pending map[uint32]chan *pdu.Header
	err     error

	closing     chan struct{}
	closingOnce sync.Once
	done        chan struct{}
	once        sync.Once
}

// NewSession wraps an established connection. No traffic flows until
// Bind is called.
func NewSession(conn net.Conn, cfg SessionConfig, handler Handler, clock ticker.Clock, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		conn:    conn,
		cfg:     cfg,
		handler: handler,
		clock:   clock,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		seq:     1,
		sendq:   make(chan *sendRequest, sendQueueLen),
		pending: make(map[uint32]chan *pdu.Header),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Bind starts the session tasks, performs the bind handshake for the
// configured mode and arms the enquire_link keepalive. A failed bind
// tears the session down.
func (s *Session) Bind(ctx context.Context) error {
	p, err := s.bindPDU()
	if err != nil {
		s.fail(err)
		return err
	}

	go s.writeLoop()
	go s.readLoop()

	hdr, err := s.request(ctx, p)
	if err != nil {
		err = errors.Wrap(ErrBindFailed, err)
		s.fail(err)
		return err
	}
	if hdr.Status != statusOK {
		err = errors.Wrap(ErrBindFailed, errors.New(StatusName(hdr.Status)))
		s.fail(err)
		return err
	}

	go s.keepalive()

	s.logger.Info("Session bound.",
		slog.String("bind_mode", string(s.cfg.BindMode)),
		slog.String("system_id", s.cfg.SystemID),
	)

	return nil
}

// Submit enqueues one submit_sm. The prepare hook runs once the PDU
// holds its sequence number, before any byte reaches the wire.
func (s *Session) Submit(ctx context.Context, p pdu.Body, prepare PrepareFunc) error {
	return s.send(ctx, &sendRequest{ctx: ctx, p: p, prepare: prepare, result: make(chan error, 1)})
}

// Close performs the unbind handshake within the response window and
// then tears the session down. Err reports ErrSessionClosed afterward,
// which marks the teardown as deliberate.
func (s *Session) Close(ctx context.Context) error {
	s.closingOnce.Do(func() { close(s.closing) })
	if _, err := s.request(ctx, pdu.NewUnbind()); err != nil && !errors.Contains(err, ErrSessionClosed) {
		s.logger.Warn("Unbind handshake failed.", slog.Any("error", err))
	}
	s.fail(ErrSessionClosed)

	return nil
}

// Done is closed when the session stops serving traffic.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended, ErrSessionClosed for a deliberate
// Close, or nil while it is live.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Session) fail(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.cancel()
		close(s.done)
		if cerr := s.conn.Close(); cerr != nil {
			s.logger.Debug("Closing connection failed.", slog.Any("error", cerr))
		}
	})
}

func (s *Session) bindPDU() (pdu.Body, error) {
	var p pdu.Body
	switch s.cfg.BindMode {
	case BindTransmitter:
		p = pdu.NewBindTransmitter()
	case BindReceiver:
		p = pdu.NewBindReceiver()
	default:
		p = pdu.NewBindTransceiver()
	}

	ton, err := tonOctet(s.cfg.AddrTON)
	if err != nil {
		return nil, err
	}
	npi, err := npiOctet(s.cfg.AddrNPI)
	if err != nil {
		return nil, err
	}
	version, err := interfaceVersionOctet(s.cfg.InterfaceVersion)
	if err != nil {
		return nil, err
	}

	f := p.Fields()
	fields := []fieldSetting{
		{pdufield.SystemID, s.cfg.SystemID},
		{pdufield.Password, s.cfg.Password},
		{pdufield.SystemType, s.cfg.SystemType},
		{pdufield.InterfaceVersion, version},
		{pdufield.AddrTON, ton},
		{pdufield.AddrNPI, npi},
		{pdufield.AddressRange, s.cfg.AddressRange},
	}
	for _, fd := range fields {
		if err := f.Set(fd.k, fd.v); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// request sends a session-control PDU and waits for its response
// within the response window.
func (s *Session) request(ctx context.Context, p pdu.Body) (*pdu.Header, error) {
	respc := make(chan *pdu.Header, 1)
	var seq uint32
	req := &sendRequest{
		ctx: ctx,
		p:   p,
		prepare: func(_ context.Context, n uint32) error {
			seq = n
			s.mu.Lock()
			s.pending[n] = respc
			s.mu.Unlock()
			return nil
		},
		result: make(chan error, 1),
	}
	if err := s.send(ctx, req); err != nil {
		s.unregister(seq)
		return nil, err
	}

	timer := s.clock.NewTimer(s.cfg.ResponseWindow)
	defer timer.Stop()
	select {
	case hdr := <-respc:
		return hdr, nil
	case <-timer.C():
		s.unregister(seq)
		return nil, ErrResponseTimeout
	case <-ctx.Done():
		s.unregister(seq)
		return nil, ctx.Err()
	case <-s.done:
		return nil, s.Err()
	}
}

func (s *Session) unregister(seq uint32) {
	s.mu.Lock()
	delete(s.pending, seq)
	s.mu.Unlock()
}

func (s *Session) send(ctx context.Context, req *sendRequest) error {
	select {
	case s.sendq <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.Wrap(ErrSessionClosed, s.Err())
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.Wrap(ErrSessionClosed, s.Err())
	}
}

// reply enqueues a response PDU carrying the peer's sequence number.
// It never blocks on delivery results.
func (s *Session) reply(p pdu.Body) {
	select {
	case s.sendq <- &sendRequest{ctx: s.ctx, p: p, sequenced: true}:
	case <-s.done:
	}
}

func (s *Session) writeLoop() {
	w := bufio.NewWriter(s.conn)
	for {
		select {
		case req := <-s.sendq:
			if !req.sequenced {
				seq := s.nextSeq()
				req.p.Header().Seq = seq
				if req.prepare != nil {
					if err := req.prepare(req.ctx, seq); err != nil {
						if req.result != nil {
							req.result <- err
						}
						continue
					}
				}
			}
			err := s.write(w, req.p)
			if req.result != nil {
				req.result <- err
			}
			if err != nil {
				s.fail(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) write(w *bufio.Writer, p pdu.Body) error {
	if err := p.SerializeTo(w); err != nil {
		return err
	}

	return w.Flush()
}

func (s *Session) nextSeq() uint32 {
	seq := s.seq
	if s.seq >= maxSequenceNumber {
		s.seq = 1
	} else {
		s.seq++
	}

	return seq
}

func (s *Session) readLoop() {
	r := bufio.NewReader(s.conn)
	for {
		p, frame, err := readFrame(r)
		if err != nil {
			if p == nil && frame == nil {
				s.fail(err)
				return
			}
			// The frame was consumed whole, so the stream is still in
			// sync; answer requests we cannot decode and move on.
			s.nackFrame(frame, err)
			continue
		}
		s.dispatch(p)
	}
}

// readFrame reads exactly one length-prefixed PDU and decodes it from
// the buffered frame. Decoding failures return the raw frame so the
// header can still be answered; read failures return neither.
func readFrame(r *bufio.Reader) (pdu.Body, []byte, error) {
	var lenb [4]byte
	if _, err := io.ReadFull(r, lenb[:]); err != nil {
		return nil, nil, err
	}
	size := binary.BigEndian.Uint32(lenb[:])
	if size < pdu.HeaderLen || size > pdu.MaxSize {
		return nil, nil, fmt.Errorf("invalid PDU length: %d", size)
	}
	frame := make([]byte, size)
	copy(frame, lenb[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		return nil, nil, err
	}

	p, err := pdu.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, frame, err
	}

	return p, frame, nil
}

// nackFrame answers an undecodable request frame with a generic_nack
// carrying ESME_RINVCMDID and the peer's sequence number.
func (s *Session) nackFrame(frame []byte, cause error) {
	hdr, err := pdu.DecodeHeader(bytes.NewReader(frame))
	if err != nil {
		s.logger.Warn("Dropping unreadable frame.", slog.Any("error", cause))
		return
	}
	s.logger.Warn("Rejecting unknown PDU.",
		slog.String("command_id", fmt.Sprintf("%#x", uint32(hdr.ID))),
		slog.Uint64("sequence_number", uint64(hdr.Seq)),
		slog.Any("error", cause),
	)
	if uint32(hdr.ID)&0x80000000 != 0 {
		// Never nack a response.
		return
	}

	nack := pdu.NewGenericNACK()
	nack.Header().Seq = hdr.Seq
	nack.Header().Status = statusInvCmdID
	s.reply(nack)
}

func (s *Session) dispatch(p pdu.Body) {
	hdr := p.Header()
	switch hdr.ID {
	case pdu.DeliverSMID:
		if err := s.handler.HandleDeliverSM(s.ctx, p); err != nil {
			s.logger.Error("Handling deliver_sm failed.",
				slog.Uint64("sequence_number", uint64(hdr.Seq)),
				slog.Any("error", err),
			)
		}
		// The SMSC gets its response even when local dispatch failed:
		// a peer retry storm hurts more than a lost message log.
		s.reply(pdu.NewDeliverSMRespSeq(hdr.Seq))
	case pdu.SubmitSMRespID:
		if err := s.handler.HandleSubmitSMResp(s.ctx, p); err != nil {
			s.logger.Error("Handling submit_sm_resp failed.",
				slog.Uint64("sequence_number", uint64(hdr.Seq)),
				slog.Any("error", err),
			)
		}
	case pdu.EnquireLinkID:
		s.reply(pdu.NewEnquireLinkRespSeq(hdr.Seq))
	case pdu.UnbindID:
		resp := pdu.NewUnbindResp()
		resp.Header().Seq = hdr.Seq
		// Wait for the response to hit the wire before tearing down, or
		// the writer may die with it still queued.
		req := &sendRequest{ctx: s.ctx, p: resp, sequenced: true, result: make(chan error, 1)}
		if err := s.send(s.ctx, req); err != nil {
			s.logger.Debug("Acknowledging unbind failed.", slog.Any("error", err))
		}
		s.fail(errors.Wrap(ErrSessionClosed, errors.New("peer unbind")))
	default:
		if uint32(hdr.ID)&0x80000000 != 0 {
			s.resolve(hdr)
			return
		}
		nack := pdu.NewGenericNACK()
		nack.Header().Seq = hdr.Seq
		nack.Header().Status = statusInvCmdID
		s.reply(nack)
	}
}

func (s *Session) resolve(hdr *pdu.Header) {
	s.mu.Lock()
	respc, ok := s.pending[hdr.Seq]
	if ok {
		delete(s.pending, hdr.Seq)
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("Dropping unmatched response.",
			slog.String("command", hdr.ID.String()),
			slog.Uint64("sequence_number", uint64(hdr.Seq)),
		)
		return
	}
	respc <- hdr
}

// keepalive issues enquire_link at the configured interval. A missed
// response window kills the session.
func (s *Session) keepalive() {
	t := s.clock.NewTicker(s.cfg.EnquireLinkInterval)
	defer t.Stop()
	for {
		select {
		case <-t.Tick():
			if _, err := s.request(s.ctx, pdu.NewEnquireLink()); err != nil {
				select {
				case <-s.closing:
				default:
					s.fail(errors.Wrap(ErrLinkDead, err))
				}
				return
			}
		case <-s.done:
			return
		}
	}
}
