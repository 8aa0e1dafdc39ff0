package mux_test

import (
	"testing"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"github.com/plgd-dev/coap-engine/mux"
	testNet "github.com/plgd-dev/coap-engine/test/net"
	"github.com/stretchr/testify/require"
)

func request(code codes.Code, path string, queries ...string) *message.Message {
	req := &message.Message{Code: code, Options: message.Options{}.SetPath(path)}
	for _, q := range queries {
		req.Options = req.Options.AddQuery(q)
	}
	return req
}

func serve(t *testing.T, r *mux.Router, req *message.Message, size int, offset int32) (*message.Message, bool, int32) {
	t.Helper()
	resp := &message.Message{Code: codes.Content}
	buf := make([]byte, 1152)
	handled := r.Service()(req, resp, buf, size, &offset)
	return resp, handled, offset
}

func text(s string) mux.HandlerFunc {
	return func(w mux.ResponseWriter, _ *mux.Message) {
		_ = w.SetResponse(codes.Content, message.TextPlain, []byte(s))
	}
}

func TestRouterMatch(t *testing.T) {
	r := mux.NewRouter()
	require.NoError(t, r.Handle("/a/b", text("ab")))
	require.NoError(t, r.Handle("/a/", text("a/*")))
	require.Error(t, r.Handle("/c", nil))

	tests := []struct {
		path    string
		pattern string
		found   bool
	}{
		{path: "/a/b", pattern: "a/b", found: true},
		{path: "a/b/", pattern: "a/b", found: true},
		{path: "/a/c", pattern: "a/", found: true},
		{path: "/a/b/c", pattern: "a/", found: true},
		{path: "/b", found: false},
		{path: "/.well-known/core", pattern: mux.WellKnownCore, found: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, ok := r.Match(tt.path)
			require.Equal(t, tt.found, ok)
			if ok {
				require.Equal(t, tt.pattern, route.Pattern())
			}
		})
	}

	require.NoError(t, r.HandleRemove("/a/b"))
	require.Error(t, r.HandleRemove("/a/b"))
	route, ok := r.Match("/a/b")
	require.True(t, ok)
	require.Equal(t, "a/", route.Pattern())
}

func TestRouterService(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/hello", func(w mux.ResponseWriter, req *mux.Message) {
		require.Equal(t, "hello", req.Path)
		require.Equal(t, "hello", req.Pattern)
		require.NoError(t, w.SetResponse(codes.Content, message.AppJSON, []byte(`{"a":1}`), message.Option{ID: message.MaxAge, Value: []byte{10}}))
	})

	resp, handled, offset := serve(t, r, request(codes.GET, "/hello"), 64, 0)
	require.True(t, handled)
	require.Equal(t, int32(0), offset)
	require.Equal(t, codes.Content, resp.Code)
	require.Equal(t, `{"a":1}`, string(resp.Payload))
	cf, err := resp.Options.ContentFormat()
	require.NoError(t, err)
	require.Equal(t, message.AppJSON, cf)
	age, err := resp.Options.GetUint32(message.MaxAge)
	require.NoError(t, err)
	require.Equal(t, uint32(10), age)

	_, handled, _ = serve(t, r, request(codes.GET, "/missing"), 64, 0)
	require.False(t, handled)

	r.DefaultHandleFunc(func(w mux.ResponseWriter, _ *mux.Message) {
		_ = w.SetResponse(codes.NotFound, message.TextPlain, nil)
	})
	resp, handled, _ = serve(t, r, request(codes.GET, "/missing"), 64, 0)
	require.True(t, handled)
	require.Equal(t, codes.NotFound, resp.Code)
}

func TestRouterMiddlewareOrder(t *testing.T) {
	r := mux.NewRouter()
	var calls []string
	mw := func(name string) mux.MiddlewareFunc {
		return func(next mux.Handler) mux.Handler {
			return mux.HandlerFunc(func(w mux.ResponseWriter, req *mux.Message) {
				calls = append(calls, name)
				next.ServeCOAP(w, req)
			})
		}
	}
	r.Use(mw("first"), mw("second"))
	r.HandleFunc("/x", func(w mux.ResponseWriter, _ *mux.Message) {
		calls = append(calls, "handler")
	})
	_, handled, _ := serve(t, r, request(codes.GET, "/x"), 64, 0)
	require.True(t, handled)
	require.Equal(t, []string{"first", "second", "handler"}, calls)
}

func TestMethods(t *testing.T) {
	r := mux.NewRouter()
	require.NoError(t, r.Handle("/res", mux.Methods{
		codes.GET: text("got"),
		codes.PUT: text("put"),
	}))
	resp, _, _ := serve(t, r, request(codes.PUT, "/res"), 64, 0)
	require.Equal(t, "put", string(resp.Payload))
	resp, _, _ = serve(t, r, request(codes.DELETE, "/res"), 64, 0)
	require.Equal(t, codes.MethodNotAllowed, resp.Code)
}

func TestSetResponseTooLarge(t *testing.T) {
	r := mux.NewRouter()
	var err error
	r.HandleFunc("/big", func(w mux.ResponseWriter, _ *mux.Message) {
		err = w.SetResponse(codes.Content, message.TextPlain, make([]byte, 2000))
	})
	serve(t, r, request(codes.GET, "/big"), 64, 0)
	require.ErrorIs(t, err, mux.ErrPayloadTooLarge)
}

func TestLinkFormat(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/sensors/temp", text("22"), mux.ResourceType("temperature-c"), mux.ContentType(message.TextPlain), mux.Observable())
	r.HandleFunc("/hello", text("hi"), mux.Title("Hello"))
	require.Equal(t, `</hello>;title="Hello",</sensors/temp>;rt="temperature-c";ct=0;obs`, r.LinkFormat(""))
	require.Equal(t, `</sensors/temp>;rt="temperature-c";ct=0;obs`, r.LinkFormat("rt=temp*"))
	require.Equal(t, "", r.LinkFormat("rt=light"))

	resp, handled, offset := serve(t, r, request(codes.GET, "/.well-known/core", "title=Hello"), 64, 0)
	require.True(t, handled)
	require.Equal(t, int32(0), offset)
	require.Equal(t, `</hello>;title="Hello"`, string(resp.Payload))
	cf, err := resp.Options.ContentFormat()
	require.NoError(t, err)
	require.Equal(t, message.AppLinkFormat, cf)
}

func TestWellKnownCoreInBlocks(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/sensors/temp", text("22"), mux.ResourceType("temperature-c"), mux.Observable())
	r.HandleFunc("/hello", text("hi"), mux.Title("Hello"))
	links := r.LinkFormat("")
	require.Greater(t, len(links), 32)

	var got []byte
	offset := int32(0)
	for {
		resp, handled, next := serve(t, r, request(codes.GET, "/.well-known/core"), 32, offset)
		require.True(t, handled)
		got = append(got, resp.Payload...)
		if next == -1 {
			break
		}
		require.Equal(t, offset+32, next)
		offset = next
	}
	require.Equal(t, links, string(got))

	resp, _, _ := serve(t, r, request(codes.POST, "/.well-known/core"), 32, 0)
	require.Equal(t, codes.MethodNotAllowed, resp.Code)
}

func TestRouterRandomPaths(t *testing.T) {
	r := mux.NewRouter()
	for i := 0; i < 50; i++ {
		path := testNet.RandomPath(64, 16)
		want := testNet.NormalizePath(path)
		if want == "" {
			continue
		}
		require.NoError(t, r.Handle(want, text(want)))
		req := request(codes.GET, path)
		got, err := req.Options.Path()
		require.NoError(t, err)
		require.Equal(t, want, got)
		resp, handled, _ := serve(t, r, req, 64, 0)
		require.True(t, handled)
		require.Equal(t, want, string(resp.Payload))
	}
}
