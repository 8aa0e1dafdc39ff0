package server

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/net/observation"
)

const (
	observeRegister   = 0
	observeDeregister = 1
)

// updateObserver registers or drops the observer of a GET carrying Observe.
// A registration is kept only for a successful response, which then carries
// the first sequence number.
func (s *Server) updateObserver(addr *net.UDPAddr, req, resp *message.Message) {
	if req.Code != codes.GET {
		return
	}
	obs, err := req.Options.Observe()
	if err != nil {
		return
	}
	switch obs {
	case observeRegister:
		if !resp.Code.IsSuccess() {
			return
		}
		path, _ := req.Options.Path()
		o, err := s.cfg.Observers.Add(addr, req.Token, path)
		if err != nil {
			s.cfg.Errors(fmt.Errorf("cannot register observer %v: %w", addr, err))
			return
		}
		resp.Options = resp.Options.SetObserve(o.NextSequence())
		s.cfg.Logger.Debug("observer registered", slog.String("peer", addr.String()), slog.String("path", path))
	case observeDeregister:
		if s.cfg.Observers.RemoveByToken(addr, req.Token) {
			s.cfg.Logger.Debug("observer deregistered", slog.String("peer", addr.String()))
		}
	}
}

// NotifyObservers sends the current representation of path to each of its
// observers. The service is invoked once per observer with a synthesized GET.
// Every ObserveRefreshInterval-th notification to an observer is confirmable,
// the rest are not. An observer whose notification does not produce a 2.xx
// response is dropped.
func (s *Server) NotifyObservers(path string) error {
	path = strings.Trim(path, "/")
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var errs *multierror.Error
	for _, o := range s.cfg.Observers.Observers(path) {
		if err := s.notify(o); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("observer %v: %w", o.Addr, err))
		}
	}
	return errs.ErrorOrNil()
}

func (s *Server) notify(o *observation.Observer) error {
	if s.cfg.Service == nil {
		return ErrNoServiceCallback
	}
	req := &message.Message{
		Type:    message.NonConfirmable,
		Code:    codes.GET,
		Token:   o.Token,
		Options: message.Options{}.SetPath(o.Path),
	}
	resp := &message.Message{
		Type:      message.NonConfirmable,
		Code:      codes.Content,
		Token:     o.Token,
		MessageID: s.cfg.GetMID(),
	}
	maxBlock := s.cfg.MaxBlockSize()
	var offset int32
	handled := s.cfg.Service(req, resp, s.payloadBuf, maxBlock, &offset)
	if !handled || !resp.Code.IsSuccess() {
		s.cfg.Observers.RemoveByToken(o.Addr, o.Token)
		return fmt.Errorf("%w: resource answered %v", ErrNotificationNotSent, resp.Code)
	}
	if err := blockwise.Negotiate(req, resp, blockwise.Window{Size: maxBlock}, offset, maxBlock); err != nil {
		return err
	}
	resp.Options = resp.Options.SetObserve(o.NextSequence())

	t, err := s.pool.Allocate(resp.MessageID, o.Addr)
	if err != nil {
		return err
	}
	refresh := s.cfg.ObserveRefreshInterval
	if refresh > 0 && (o.Count()+1)%refresh == 0 {
		resp.Type = message.Confirmable
	}
	packet, err := s.encode(resp)
	if err != nil {
		s.pool.Clear(t)
		return err
	}
	if err := s.pool.SetPacket(t, packet); err != nil {
		s.pool.Clear(t)
		return err
	}
	o.Sent(resp.MessageID)
	return s.pool.Send(t)
}
