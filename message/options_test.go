package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsAddKeepsOrder(t *testing.T) {
	var opts Options
	opts = opts.Add(Option{ID: Block2, Value: []byte{1}})
	opts = opts.Add(Option{ID: URIPath, Value: []byte("a")})
	opts = opts.Add(Option{ID: URIPath, Value: []byte("b")})
	opts = opts.Add(Option{ID: Observe, Value: nil})
	ids := make([]OptionID, 0, len(opts))
	for _, o := range opts {
		ids = append(ids, o.ID)
	}
	require.Equal(t, []OptionID{Observe, URIPath, URIPath, Block2}, ids)
	p, err := opts.Path()
	require.NoError(t, err)
	require.Equal(t, "a/b", p)
}

func TestOptionsSetRemove(t *testing.T) {
	var opts Options
	opts = opts.SetPath("/test/hello")
	opts = opts.SetUint32(Block2, 0x12)
	opts = opts.SetUint32(Block2, 0x22)
	v, err := opts.GetUint32(Block2)
	require.NoError(t, err)
	require.Equal(t, uint32(0x22), v)
	opts = opts.Remove(Block2)
	require.False(t, opts.HasOption(Block2))
	_, err = opts.GetUint32(Block2)
	require.ErrorIs(t, err, ErrOptionNotFound)
	require.True(t, IsNotFound(err))
	p, err := opts.Path()
	require.NoError(t, err)
	require.Equal(t, "test/hello", p)
}

func TestOptionsQuery(t *testing.T) {
	var opts Options
	opts = opts.AddQuery("len=5").AddQuery("flag")
	v, ok := opts.Query("len")
	require.True(t, ok)
	require.Equal(t, "5", v)
	_, ok = opts.Query("flag")
	require.True(t, ok)
	_, ok = opts.Query("missing")
	require.False(t, ok)
}

func TestEncodeUint32(t *testing.T) {
	require.Empty(t, EncodeUint32(0))
	require.Equal(t, []byte{0x01}, EncodeUint32(1))
	require.Equal(t, []byte{0x01, 0x00}, EncodeUint32(256))
	require.Equal(t, []byte{0xff, 0xff, 0xff}, EncodeUint32(0xffffff))
	v, err := DecodeUint32([]byte{0x01, 0x00})
	require.NoError(t, err)
	require.Equal(t, uint32(256), v)
	_, err = DecodeUint32([]byte{1, 2, 3, 4, 5})
	require.ErrorIs(t, err, ErrInvalidValueLength)
}

func TestOptionsMarshalExtended(t *testing.T) {
	long := make([]byte, 300)
	opts := Options{
		{ID: URIPath, Value: []byte("x")},
		{ID: ProxyURI, Value: long},
	}
	buf := make([]byte, opts.Size())
	n, err := opts.Marshal(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	_, err = opts.Marshal(buf[:n-1])
	require.ErrorIs(t, err, ErrTooSmall)

	var got Options
	proc, err := got.Unmarshal(buf, CoapOptionDefs)
	require.NoError(t, err)
	require.Equal(t, n, proc)
	require.Equal(t, opts, got)
}

func TestOptionsUnmarshalErrors(t *testing.T) {
	var opts Options
	_, err := opts.Unmarshal([]byte{0xf1}, CoapOptionDefs)
	require.ErrorIs(t, err, ErrOptionUnexpectedExtendMarker)
	_, err = opts.Unmarshal([]byte{0xb5, 'a'}, CoapOptionDefs)
	require.ErrorIs(t, err, ErrOptionTruncated)
	// option 9 is unknown and critical
	_, err = opts.Unmarshal([]byte{0x90}, CoapOptionDefs)
	require.ErrorIs(t, err, ErrCriticalOption)
	// option 10 is unknown and elective
	opts = nil
	n, err := opts.Unmarshal([]byte{0xa1, 'z'}, CoapOptionDefs)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Empty(t, opts)
}

func TestMessageClone(t *testing.T) {
	m := &Message{
		Token:   Token{1, 2},
		Payload: []byte("abc"),
		Options: Options{}.SetPath("a"),
	}
	c := m.Clone()
	m.Payload[0] = 'x'
	m.Token[0] = 9
	m.Options[0].Value[0] = 'z'
	require.Equal(t, []byte("abc"), c.Payload)
	require.Equal(t, Token{1, 2}, c.Token)
	p, err := c.Options.Path()
	require.NoError(t, err)
	require.Equal(t, "a", p)
	require.Nil(t, (*Message)(nil).Clone())
}

func TestGetMIDIsSequential(t *testing.T) {
	a := GetMID()
	b := GetMID()
	require.Equal(t, a+1, b)
}
