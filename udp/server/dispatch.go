package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/pkg/cache"
	"github.com/plgd-dev/coap-engine/udp/coder"
)

// process handles one datagram. The datagram is released on every path.
func (s *Server) process(d *coapNet.Datagram) error {
	defer d.Release()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var msg message.Message
	if _, err := coder.DefaultCoder.Decode(d.Data, &msg); err != nil {
		s.cfg.Metrics.MessageDropped("parse")
		s.replyParseError(d, err)
		return fmt.Errorf("%w from %v: %w", ErrParse, d.Addr, err)
	}
	s.cfg.Metrics.MessageReceived(msg.Type, msg.Code)
	if msg.Code.IsRequest() {
		return s.handleRequest(d, &msg)
	}
	s.handleResponse(d, &msg)
	return nil
}

// replyParseError answers an undecodable datagram when its header can be
// read, so the peer stops retransmitting it.
func (s *Server) replyParseError(d *coapNet.Datagram, err error) {
	typ, mid, errPeek := coder.PeekHeader(d.Data)
	if errPeek != nil || typ != message.Confirmable {
		return
	}
	code := codes.BadRequest
	if errors.Is(err, message.ErrCriticalOption) {
		code = codes.BadOption
	}
	s.replyError(d, mid, code, diagParse)
}

// replyError sends a one-shot reply built from the request header alone.
// The reply is encoded into the inbound buffer and never retransmitted.
func (s *Server) replyError(d *coapNet.Datagram, mid uint16, code codes.Code, diag string) {
	reply := message.Message{
		Type:      message.Acknowledgement,
		Code:      code.ToSendable(),
		MessageID: mid,
		Payload:   []byte(diag),
	}
	if code == codes.PingResponse {
		reply.Type = message.Reset
		reply.Code = codes.Empty
		reply.Payload = nil
	}
	buf := d.Data[:cap(d.Data)]
	n, err := coder.DefaultCoder.Encode(&reply, buf)
	if coder.IsTooSmall(err) {
		buf = make([]byte, n)
		n, err = coder.DefaultCoder.Encode(&reply, buf)
	}
	if err != nil {
		s.cfg.Errors(fmt.Errorf("cannot encode error reply: %w", err))
		return
	}
	s.send(d.Addr, buf[:n])
	s.cfg.Metrics.ReplySent(reply.Code)
}

func (s *Server) newResponse(req *message.Message) *message.Message {
	resp := &message.Message{
		Token: req.Token,
		Code:  codes.Content,
	}
	if req.Type == message.Confirmable {
		resp.Type = message.Acknowledgement
		resp.MessageID = req.MessageID
	} else {
		resp.Type = message.NonConfirmable
		resp.MessageID = s.cfg.GetMID()
	}
	return resp
}

func (s *Server) resendCached(addr *net.UDPAddr, mid uint16) bool {
	e, ok := s.replies.Load(replyKey(addr, mid))
	if !ok {
		return false
	}
	s.cfg.Logger.Debug("answering duplicate request from cache", slog.String("peer", addr.String()), slog.Int("mid", int(mid)))
	s.send(addr, e.Data())
	return true
}

func (s *Server) handleRequest(d *coapNet.Datagram, req *message.Message) error {
	addr := d.Addr
	if s.resendCached(addr, req.MessageID) {
		s.cfg.Metrics.MessageDropped("duplicate")
		return nil
	}
	t, err := s.pool.Allocate(req.MessageID, addr)
	if err != nil {
		s.replyError(d, req.MessageID, codes.ServiceUnavailable, diagNoFreeTransaction)
		return err
	}
	if s.cfg.Service == nil {
		s.pool.Clear(t)
		s.replyError(d, req.MessageID, codes.NotImplemented, diagNoService)
		return ErrNoServiceCallback
	}

	maxBlock := s.cfg.MaxBlockSize()
	w, err := blockwise.RequestedWindow(req, maxBlock)
	if err != nil {
		s.pool.Clear(t)
		if req.Options.HasOption(message.Block1) {
			s.replyError(d, req.MessageID, codes.NotImplemented, diagNoBlock1)
			return fmt.Errorf("%w: %w", ErrBlock1Unsupported, err)
		}
		s.replyError(d, req.MessageID, codes.BadOption, diagBadBlock2)
		return fmt.Errorf("%w: %w", ErrInvalidBlock2, err)
	}
	newOffset := w.Offset

	resp := s.newResponse(req)
	handled := s.cfg.Service(req, resp, s.payloadBuf, w.Size, &newOffset)
	if resp.Code == codes.ManualResponse {
		s.pool.Clear(t)
		return nil
	}
	if !resp.Code.Sendable() {
		s.pool.Clear(t)
		s.replyError(d, req.MessageID, resp.Code, "")
		return fmt.Errorf("%w: service returned %v", ErrInternal, resp.Code)
	}

	var outOfRange error
	if !handled {
		resp.Code = codes.NotFound
		resp.Options = nil
		resp.Payload = nil
	} else {
		err = blockwise.Negotiate(req, resp, w, newOffset, maxBlock)
		switch {
		case err == nil:
		case errors.Is(err, blockwise.ErrBlockOutOfRange):
			outOfRange = err
		case errors.Is(err, blockwise.ErrBlock1Unsupported):
			s.pool.Clear(t)
			s.replyError(d, req.MessageID, codes.NotImplemented, diagNoBlock1)
			return err
		default:
			s.pool.Clear(t)
			s.replyError(d, req.MessageID, codes.InternalServerError, "")
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}
		if !w.Requested || w.Num == 0 {
			s.updateObserver(addr, req, resp)
		}
	}

	packet, err := s.encode(resp)
	if err != nil {
		s.pool.Clear(t)
		s.replyError(d, req.MessageID, codes.PacketSerializationError, diagSerialization)
		return err
	}
	if err := s.pool.SetPacket(t, packet); err != nil {
		s.pool.Clear(t)
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	s.replies.LoadOrStore(replyKey(addr, req.MessageID),
		cache.NewElement(append([]byte(nil), packet...), time.Now().Add(s.cfg.ExchangeLifetime), nil))
	if err := s.pool.Send(t); err != nil {
		return err
	}
	s.cfg.Metrics.ReplySent(resp.Code)
	return outOfRange
}

func (s *Server) handleResponse(d *coapNet.Datagram, msg *message.Message) {
	addr := d.Addr
	if msg.IsPing() {
		s.cfg.Logger.Debug("answering ping", slog.String("peer", addr.String()))
		s.replyError(d, msg.MessageID, codes.PingResponse, "")
		return
	}
	if msg.Type == message.Reset {
		if n := s.cfg.Observers.RemoveByMID(addr, msg.MessageID); n > 0 {
			s.cfg.Logger.Debug("observer cancelled by reset", slog.String("peer", addr.String()))
		}
	}
	if h, ok := s.pool.Complete(msg.MessageID); ok {
		if h != nil {
			h(msg.Clone())
		}
		return
	}
	if (msg.Type == message.Confirmable || msg.Type == message.NonConfirmable) && msg.Options.HasOption(message.Observe) {
		if s.cfg.Notifications.HandleNotification(addr, msg.Clone()) && msg.Type == message.Confirmable {
			s.replyEmpty(addr, message.Acknowledgement, msg.MessageID)
		}
		return
	}
	s.cfg.Metrics.MessageDropped("unmatched")
}

func (s *Server) replyEmpty(addr *net.UDPAddr, typ message.Type, mid uint16) {
	packet, err := s.encode(&message.Message{Type: typ, Code: codes.Empty, MessageID: mid})
	if err != nil {
		s.cfg.Errors(err)
		return
	}
	s.send(addr, packet)
	s.cfg.Metrics.ReplySent(codes.Empty)
}
