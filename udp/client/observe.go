package client

import (
	"context"
	"net"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
)

// Observation is a registration made by Observe.
type Observation struct {
	client *Client
	peer   *net.UDPAddr
	token  message.Token
	path   string
}

// Observe registers for notifications of path at peer. onNotify gets the
// response to the registration and every later notification carrying its
// token. Notifications are delivered only when the client's hook is enabled.
func (c *Client) Observe(ctx context.Context, peer *net.UDPAddr, path string, onNotify func(*message.Message)) (*Observation, error) {
	token, err := c.cfg.GetToken()
	if err != nil {
		return nil, err
	}
	c.notifications.Register(token, func(_ *net.UDPAddr, n *message.Message) {
		onNotify(n)
	})
	req := &message.Message{
		Code:    codes.GET,
		Token:   token,
		Options: message.Options{}.SetPath(path).SetObserve(0),
	}
	if err := c.Request(ctx, peer, req, ChunkFunc(onNotify)); err != nil {
		c.notifications.Unregister(token)
		return nil, err
	}
	return &Observation{client: c, peer: peer, token: token, path: path}, nil
}

// Token returns the token the notifications carry.
func (o *Observation) Token() message.Token {
	return o.token
}

// Cancel stops delivery and asks the peer to drop the registration.
func (o *Observation) Cancel(ctx context.Context) error {
	o.client.notifications.Unregister(o.token)
	req := &message.Message{
		Code:    codes.GET,
		Token:   o.token,
		Options: message.Options{}.SetPath(o.path).SetObserve(1),
	}
	return o.client.Request(ctx, o.peer, req, nil)
}
