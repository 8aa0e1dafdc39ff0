package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	coapNet "github.com/plgd-dev/coap-engine/net"
	"github.com/plgd-dev/coap-engine/net/blockwise"
	"github.com/plgd-dev/coap-engine/net/observation"
	"github.com/plgd-dev/coap-engine/net/transaction"
	"github.com/plgd-dev/coap-engine/udp/coder"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var peer = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5683}

type capture struct {
	mutex sync.Mutex
	msgs  []*message.Message
	addrs []*net.UDPAddr
	sent  chan struct{}
}

func newCapture() *capture {
	return &capture{sent: make(chan struct{}, 64)}
}

func (c *capture) Send(addr *net.UDPAddr, data []byte) error {
	var m message.Message
	if _, err := coder.DefaultCoder.Decode(append([]byte(nil), data...), &m); err != nil {
		return err
	}
	c.mutex.Lock()
	c.msgs = append(c.msgs, m.Clone())
	c.addrs = append(c.addrs, addr)
	c.mutex.Unlock()
	c.sent <- struct{}{}
	return nil
}

func (c *capture) all() []*message.Message {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]*message.Message(nil), c.msgs...)
}

func (c *capture) last(t *testing.T) *message.Message {
	msgs := c.all()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type env struct {
	srv      *Server
	inbound  *coapNet.Inbound
	sender   *capture
	pool     *transaction.Pool
	released int
}

func newEnv(t *testing.T, service ServiceFunc, opts ...Option) *env {
	t.Helper()
	e := &env{
		inbound: coapNet.NewInbound(8),
		sender:  newCapture(),
	}
	observers := observation.NewRegistry(nil)
	e.pool = transaction.New(e.sender, transaction.Config{
		Capacity:        4,
		ResponseTimeout: time.Hour,
		MaxRetransmit:   4,
		Observers:       observers,
	})
	opts = append([]Option{
		WithObservation(observers, observation.NewHook(true)),
		OptionFunc(func(cfg *Config) { cfg.Service = service }),
	}, opts...)
	e.srv = New(e.inbound, e.sender, e.pool, opts...)
	return e
}

func (e *env) push(t *testing.T, m *message.Message) {
	t.Helper()
	data, err := coder.DefaultCoder.Marshal(m, 1152)
	require.NoError(t, err)
	e.pushRaw(t, data)
}

func (e *env) pushRaw(t *testing.T, data []byte) {
	t.Helper()
	require.True(t, e.inbound.Push(coapNet.NewDatagram(data, peer, func() { e.released++ })))
}

// hello writes len bytes, 20 by default, ignoring blockwise.
func hello(req, resp *message.Message, buf []byte, _ int, _ *int32) bool {
	n := 20
	if v, ok := req.Options.Query("len"); ok {
		n, _ = strconv.Atoi(v)
	}
	for i := 0; i < n; i++ {
		buf[i] = byte('a' + i%26)
	}
	resp.Code = codes.Content
	resp.Options = resp.Options.SetContentFormat(message.TextPlain)
	resp.Payload = buf[:n]
	return true
}

// chunks streams a 300 byte resource in blocks of preferredSize.
func chunks(_, resp *message.Message, buf []byte, preferredSize int, offset *int32) bool {
	const total = 300
	start := int(*offset)
	n := min(preferredSize, total-start)
	for i := 0; i < n; i++ {
		buf[i] = byte('0' + (start+i)%10)
	}
	resp.Payload = buf[:n]
	if start+n >= total {
		*offset = -1
	} else {
		*offset = int32(start + n)
	}
	return true
}

func get(mid uint16, path string) *message.Message {
	return &message.Message{
		Type:      message.Confirmable,
		Code:      codes.GET,
		MessageID: mid,
		Token:     message.Token{0x01, 0x02},
		Options:   message.Options{}.SetPath(path),
	}
}

func TestReceiveOnceEmptyQueue(t *testing.T) {
	e := newEnv(t, hello)
	require.NoError(t, e.srv.ReceiveOnce())
	require.Empty(t, e.sender.all())
}

func TestReceiveOnceHello(t *testing.T) {
	e := newEnv(t, hello)
	req := get(0x1234, "/hello")
	req.Options = req.Options.AddQuery("len=20")
	e.push(t, req)
	require.NoError(t, e.srv.ReceiveOnce())

	resp := e.sender.last(t)
	require.Equal(t, message.Acknowledgement, resp.Type)
	require.Equal(t, uint16(0x1234), resp.MessageID)
	require.Equal(t, codes.Content, resp.Code)
	require.Equal(t, message.Token{0x01, 0x02}, resp.Token)
	require.Len(t, resp.Payload, 20)
	require.False(t, resp.Options.HasOption(message.Block2))
	require.Equal(t, 1, e.released)
	require.Equal(t, 0, e.pool.Len())
}

func TestReceiveOnceNonConfirmableGetsFreshMID(t *testing.T) {
	e := newEnv(t, hello, OptionFunc(func(cfg *Config) {
		cfg.GetMID = func() uint16 { return 0x7777 }
	}))
	req := get(0x1234, "/hello")
	req.Type = message.NonConfirmable
	e.push(t, req)
	require.NoError(t, e.srv.ReceiveOnce())

	resp := e.sender.last(t)
	require.Equal(t, message.NonConfirmable, resp.Type)
	require.Equal(t, uint16(0x7777), resp.MessageID)
	require.Equal(t, message.Token{0x01, 0x02}, resp.Token)
}

func TestReceiveOnceChunkedTransfer(t *testing.T) {
	e := newEnv(t, chunks)
	var got []byte
	for num := uint32(0); num < 5; num++ {
		req := get(uint16(100+num), "/big")
		if num > 0 {
			require.NoError(t, blockwise.Set(req, message.Block2, num, false, 64))
		}
		e.push(t, req)
		require.NoError(t, e.srv.ReceiveOnce())

		resp := e.sender.last(t)
		b, found, err := blockwise.Get(resp, message.Block2)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, num, b.Num)
		require.Equal(t, 64, b.Size())
		require.Equal(t, num < 4, b.More)
		got = append(got, resp.Payload...)
		if num == 4 {
			require.Len(t, resp.Payload, 300%64)
		}
	}
	require.Len(t, got, 300)
	require.Equal(t, byte('0'), got[0])
	require.Equal(t, byte('9'), got[299])
	require.Equal(t, 5, e.released)
}

func TestReceiveOnceSlicesUnawarePayload(t *testing.T) {
	e := newEnv(t, hello)
	req := get(1, "/hello")
	req.Options = req.Options.AddQuery("len=150")
	require.NoError(t, blockwise.Set(req, message.Block2, 2, false, 64))
	e.push(t, req)
	require.NoError(t, e.srv.ReceiveOnce())

	resp := e.sender.last(t)
	b, found, err := blockwise.Get(resp, message.Block2)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(2), b.Num)
	require.False(t, b.More)
	require.Len(t, resp.Payload, 22)
}

func TestReceiveOnceBlockOutOfRange(t *testing.T) {
	e := newEnv(t, hello)
	req := get(1, "/hello")
	require.NoError(t, blockwise.Set(req, message.Block2, 5, false, 64))
	e.push(t, req)
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrBlockOutOfRange)

	resp := e.sender.last(t)
	require.Equal(t, codes.BadOption, resp.Code)
	require.Equal(t, blockwise.OutOfScopeMessage, string(resp.Payload))
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceBlock1Unsupported(t *testing.T) {
	e := newEnv(t, hello)
	req := get(1, "/hello")
	require.NoError(t, blockwise.Set(req, message.Block1, 0, true, 64))
	require.NoError(t, blockwise.Set(req, message.Block2, 0, false, 64))
	e.push(t, req)
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrBlock1Unsupported)

	resp := e.sender.last(t)
	require.Equal(t, message.Acknowledgement, resp.Type)
	require.Equal(t, codes.NotImplemented, resp.Code)
	require.Equal(t, diagNoBlock1, string(resp.Payload))
	require.Equal(t, 0, e.pool.Len())
}

func TestReceiveOnceBlock1WithInvalidBlock2(t *testing.T) {
	called := false
	e := newEnv(t, func(req, resp *message.Message, buf []byte, size int, offset *int32) bool {
		called = true
		return hello(req, resp, buf, size, offset)
	})
	req := get(2, "/hello")
	require.NoError(t, blockwise.Set(req, message.Block1, 0, true, 64))
	// szx 7 is reserved
	req.Options = req.Options.SetUint32(message.Block2, 0x7)
	e.push(t, req)
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrBlock1Unsupported)
	require.False(t, called)

	resp := e.sender.last(t)
	require.Equal(t, codes.NotImplemented, resp.Code)
	require.Equal(t, diagNoBlock1, string(resp.Payload))
	require.Equal(t, 0, e.pool.Len())
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceSerializationError(t *testing.T) {
	e := newEnv(t, func(_, resp *message.Message, buf []byte, _ int, _ *int32) bool {
		resp.Payload = buf
		return true
	})
	e.push(t, get(9, "/full"))
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrSerialization)

	resp := e.sender.last(t)
	require.Equal(t, message.Acknowledgement, resp.Type)
	require.Equal(t, uint16(9), resp.MessageID)
	require.Equal(t, codes.InternalServerError, resp.Code)
	require.Equal(t, diagSerialization, string(resp.Payload))
	require.Equal(t, 0, e.pool.Len())
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceNoService(t *testing.T) {
	e := newEnv(t, nil)
	e.push(t, get(7, "/hello"))
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrNoServiceCallback)

	resp := e.sender.last(t)
	require.Equal(t, codes.NotImplemented, resp.Code)
	require.Equal(t, uint16(7), resp.MessageID)
	require.Equal(t, diagNoService, string(resp.Payload))
	require.Equal(t, 0, e.pool.Len())
}

func TestReceiveOncePoolExhausted(t *testing.T) {
	e := newEnv(t, hello)
	for i := 0; i < e.pool.Cap(); i++ {
		_, err := e.pool.Allocate(uint16(1000+i), peer)
		require.NoError(t, err)
	}
	e.push(t, get(7, "/hello"))
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrTransactionPoolExhausted)

	resp := e.sender.last(t)
	require.Equal(t, codes.ServiceUnavailable, resp.Code)
	require.Equal(t, diagNoFreeTransaction, string(resp.Payload))
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceNotHandled(t *testing.T) {
	e := newEnv(t, func(_, _ *message.Message, _ []byte, _ int, _ *int32) bool {
		return false
	})
	e.push(t, get(7, "/missing"))
	require.NoError(t, e.srv.ReceiveOnce())
	require.Equal(t, codes.NotFound, e.sender.last(t).Code)
}

func TestReceiveOnceInternalCodeIsDowngraded(t *testing.T) {
	e := newEnv(t, func(_, resp *message.Message, _ []byte, _ int, _ *int32) bool {
		resp.Code = codes.MemoryAllocationError
		return true
	})
	e.push(t, get(7, "/hello"))
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrInternal)

	resp := e.sender.last(t)
	require.Equal(t, codes.InternalServerError, resp.Code)
	require.Equal(t, 0, e.pool.Len())
}

func TestReceiveOnceManualResponse(t *testing.T) {
	e := newEnv(t, func(_, resp *message.Message, _ []byte, _ int, _ *int32) bool {
		resp.Code = codes.ManualResponse
		return true
	})
	e.push(t, get(7, "/hello"))
	require.NoError(t, e.srv.ReceiveOnce())
	require.Empty(t, e.sender.all())
	require.Equal(t, 0, e.pool.Len())
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceParseError(t *testing.T) {
	e := newEnv(t, hello)
	// version 1, CON, token length 9
	e.pushRaw(t, []byte{0x49, 0x01, 0x12, 0x34})
	err := e.srv.ReceiveOnce()
	require.ErrorIs(t, err, ErrParse)

	resp := e.sender.last(t)
	require.Equal(t, message.Acknowledgement, resp.Type)
	require.Equal(t, uint16(0x1234), resp.MessageID)
	require.Equal(t, codes.BadRequest, resp.Code)
	require.Equal(t, diagParse, string(resp.Payload))
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceUnreadableDatagramIsDropped(t *testing.T) {
	e := newEnv(t, hello)
	e.pushRaw(t, []byte{0x40})
	require.ErrorIs(t, e.srv.ReceiveOnce(), ErrParse)
	require.Empty(t, e.sender.all())
	require.Equal(t, 1, e.released)
}

func TestReceiveOncePing(t *testing.T) {
	e := newEnv(t, hello)
	e.push(t, &message.Message{Type: message.Confirmable, Code: codes.Empty, MessageID: 42})
	require.NoError(t, e.srv.ReceiveOnce())

	resp := e.sender.last(t)
	require.Equal(t, message.Reset, resp.Type)
	require.Equal(t, codes.Empty, resp.Code)
	require.Equal(t, uint16(42), resp.MessageID)
	require.Empty(t, resp.Payload)
	require.Equal(t, 0, e.pool.Len())
}

func TestReceiveOnceCompletesTransaction(t *testing.T) {
	e := newEnv(t, hello)
	tr, err := e.pool.Allocate(99, peer)
	require.NoError(t, err)
	var got []*message.Message
	e.pool.SetResponseHandler(tr, func(m *message.Message) {
		got = append(got, m)
	})

	e.push(t, &message.Message{
		Type:      message.Acknowledgement,
		Code:      codes.Content,
		MessageID: 99,
		Payload:   []byte("ok"),
	})
	require.NoError(t, e.srv.ReceiveOnce())
	require.Len(t, got, 1)
	require.Equal(t, "ok", string(got[0].Payload))
	require.False(t, tr.Alive())
	require.Equal(t, 0, e.pool.Len())
	require.Equal(t, 1, e.released)
}

func TestReceiveOnceAnswersDuplicateFromCache(t *testing.T) {
	var calls int
	e := newEnv(t, func(req, resp *message.Message, buf []byte, size int, offset *int32) bool {
		calls++
		return hello(req, resp, buf, size, offset)
	})
	e.push(t, get(5, "/hello"))
	e.push(t, get(5, "/hello"))
	require.NoError(t, e.srv.ReceiveOnce())
	require.NoError(t, e.srv.ReceiveOnce())

	require.Equal(t, 1, calls)
	msgs := e.sender.all()
	require.Len(t, msgs, 2)
	require.Equal(t, msgs[0], msgs[1])
	require.Equal(t, 2, e.released)
}

func TestReceiveOnceDeliversNotification(t *testing.T) {
	e := newEnv(t, hello)
	var got *message.Message
	e.srv.Notifications().Register(message.Token{0xaa}, func(_ *net.UDPAddr, n *message.Message) {
		got = n
	})
	e.push(t, &message.Message{
		Type:      message.Confirmable,
		Code:      codes.Content,
		MessageID: 77,
		Token:     message.Token{0xaa},
		Options:   message.Options{}.SetObserve(3),
		Payload:   []byte("22C"),
	})
	require.NoError(t, e.srv.ReceiveOnce())
	require.NotNil(t, got)
	require.Equal(t, "22C", string(got.Payload))

	ack := e.sender.last(t)
	require.Equal(t, message.Acknowledgement, ack.Type)
	require.Equal(t, codes.Empty, ack.Code)
	require.Equal(t, uint16(77), ack.MessageID)
}

func TestReceiveOnceIgnoresNotificationWhenDisabled(t *testing.T) {
	e := newEnv(t, hello, OptionFunc(func(cfg *Config) {
		cfg.Notifications = observation.NewHook(false)
	}))
	called := false
	e.srv.Notifications().Register(message.Token{0xaa}, func(*net.UDPAddr, *message.Message) { called = true })
	e.push(t, &message.Message{
		Type:      message.NonConfirmable,
		Code:      codes.Content,
		MessageID: 77,
		Token:     message.Token{0xaa},
		Options:   message.Options{}.SetObserve(3),
	})
	require.NoError(t, e.srv.ReceiveOnce())
	require.False(t, called)
	require.Empty(t, e.sender.all())
}

func observe(mid uint16, value uint32) *message.Message {
	req := get(mid, "/push")
	req.Options = req.Options.SetObserve(value)
	return req
}

func TestObserveResetRemovesObserver(t *testing.T) {
	e := newEnv(t, hello, OptionFunc(func(cfg *Config) {
		cfg.GetMID = func() uint16 { return 500 }
	}))
	e.push(t, observe(1, 0))
	require.NoError(t, e.srv.ReceiveOnce())
	reg := e.sender.last(t)
	_, err := reg.Options.Observe()
	require.NoError(t, err)
	require.Equal(t, 1, e.srv.Observers().Len())

	require.NoError(t, e.srv.NotifyObservers("/push"))
	n := e.sender.last(t)
	require.Equal(t, message.NonConfirmable, n.Type)
	require.Equal(t, uint16(500), n.MessageID)
	require.Equal(t, message.Token{0x01, 0x02}, n.Token)
	require.Len(t, e.sender.all(), 2)

	e.push(t, &message.Message{Type: message.Reset, Code: codes.Empty, MessageID: 500})
	require.NoError(t, e.srv.ReceiveOnce())
	require.Equal(t, 0, e.srv.Observers().Len())

	require.NoError(t, e.srv.NotifyObservers("/push"))
	require.Len(t, e.sender.all(), 2)
}

func TestObserveDeregister(t *testing.T) {
	e := newEnv(t, hello)
	e.push(t, observe(1, 0))
	require.NoError(t, e.srv.ReceiveOnce())
	require.Equal(t, 1, e.srv.Observers().Len())

	e.push(t, observe(2, 1))
	require.NoError(t, e.srv.ReceiveOnce())
	require.Equal(t, 0, e.srv.Observers().Len())
}

func TestNotifyObserversSequenceAndRefresh(t *testing.T) {
	e := newEnv(t, hello, OptionFunc(func(cfg *Config) {
		cfg.ObserveRefreshInterval = 2
	}))
	e.push(t, observe(1, 0))
	require.NoError(t, e.srv.ReceiveOnce())

	require.NoError(t, e.srv.NotifyObservers("/push"))
	first := e.sender.last(t)
	require.Equal(t, message.NonConfirmable, first.Type)
	require.NoError(t, e.srv.NotifyObservers("/push"))
	second := e.sender.last(t)
	require.Equal(t, message.Confirmable, second.Type)

	s1, err := first.Options.Observe()
	require.NoError(t, err)
	s2, err := second.Options.Observe()
	require.NoError(t, err)
	require.Equal(t, s1+1, s2)

	// the confirmable notification waits for its ACK
	require.Equal(t, 1, e.pool.Len())
	e.push(t, &message.Message{Type: message.Acknowledgement, Code: codes.Empty, MessageID: second.MessageID})
	require.NoError(t, e.srv.ReceiveOnce())
	require.Equal(t, 0, e.pool.Len())
}

func TestNotifyObserversDropsFailingObserver(t *testing.T) {
	fail := false
	e := newEnv(t, func(req, resp *message.Message, buf []byte, size int, offset *int32) bool {
		if fail {
			resp.Code = codes.NotFound
			return true
		}
		return hello(req, resp, buf, size, offset)
	})
	e.push(t, observe(1, 0))
	require.NoError(t, e.srv.ReceiveOnce())
	require.Equal(t, 1, e.srv.Observers().Len())

	fail = true
	err := e.srv.NotifyObservers("/push")
	require.ErrorIs(t, err, ErrNotificationNotSent)
	require.Equal(t, 0, e.srv.Observers().Len())
}

func TestServe(t *testing.T) {
	e := newEnv(t, hello, OptionFunc(func(cfg *Config) {
		cfg.ReceiveTimeout = 10 * time.Millisecond
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- e.srv.Serve(ctx)
	}()
	e.push(t, get(3, "/hello"))
	select {
	case <-e.sender.sent:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no reply")
	}
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, uint16(3), e.sender.last(t).MessageID)
}
