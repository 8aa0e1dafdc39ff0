package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Options is an ordered (by ID) list of options. Repeatable options keep
// their insertion order.
type Options []Option

// Find returns the half-open index range [start, end) of options with id.
func (options Options) Find(id OptionID) (int, int, error) {
	start := -1
	for i, o := range options {
		if o.ID == id {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return start, i, nil
		}
		if o.ID > id {
			break
		}
	}
	if start < 0 {
		return -1, -1, ErrOptionNotFound
	}
	return start, len(options), nil
}

// HasOption reports whether the option with id is present.
func (options Options) HasOption(id OptionID) bool {
	_, _, err := options.Find(id)
	return err == nil
}

// Add appends the option after the options with the same or lower ID.
func (options Options) Add(opt Option) Options {
	idx := len(options)
	for i, o := range options {
		if o.ID > opt.ID {
			idx = i
			break
		}
	}
	options = append(options, Option{})
	copy(options[idx+1:], options[idx:])
	options[idx] = opt
	return options
}

// Set replaces every option with opt.ID by opt.
func (options Options) Set(opt Option) Options {
	return options.Remove(opt.ID).Add(opt)
}

// Remove drops every option with id.
func (options Options) Remove(id OptionID) Options {
	start, end, err := options.Find(id)
	if err != nil {
		return options
	}
	return append(options[:start], options[end:]...)
}

// Clone returns a deep copy.
func (options Options) Clone() Options {
	if options == nil {
		return nil
	}
	out := make(Options, len(options))
	for i, o := range options {
		out[i] = Option{ID: o.ID, Value: append([]byte(nil), o.Value...)}
	}
	return out
}

// GetBytes returns the value of the first option with id.
func (options Options) GetBytes(id OptionID) ([]byte, error) {
	start, _, err := options.Find(id)
	if err != nil {
		return nil, err
	}
	return options[start].Value, nil
}

// GetUint32 decodes the value of the first option with id as an uint.
func (options Options) GetUint32(id OptionID) (uint32, error) {
	v, err := options.GetBytes(id)
	if err != nil {
		return 0, err
	}
	return DecodeUint32(v)
}

// SetUint32 replaces the option with id by its minimal uint encoding.
func (options Options) SetUint32(id OptionID, value uint32) Options {
	return options.Set(Option{ID: id, Value: EncodeUint32(value)})
}

// SetString replaces the option with id by a string value.
func (options Options) SetString(id OptionID, value string) Options {
	return options.Set(Option{ID: id, Value: []byte(value)})
}

func (options Options) strings(id OptionID) []string {
	start, end, err := options.Find(id)
	if err != nil {
		return nil
	}
	out := make([]string, 0, end-start)
	for _, o := range options[start:end] {
		out = append(out, string(o.Value))
	}
	return out
}

// Path joins the Uri-Path segments with '/'. The result has no leading slash.
func (options Options) Path() (string, error) {
	segments := options.strings(URIPath)
	if segments == nil {
		return "", ErrOptionNotFound
	}
	return strings.Join(segments, "/"), nil
}

// SetPath replaces the Uri-Path options by the segments of path.
func (options Options) SetPath(path string) Options {
	options = options.Remove(URIPath)
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s == "" {
			continue
		}
		options = options.Add(Option{ID: URIPath, Value: []byte(s)})
	}
	return options
}

// Queries returns the Uri-Query options.
func (options Options) Queries() ([]string, error) {
	q := options.strings(URIQuery)
	if q == nil {
		return nil, ErrOptionNotFound
	}
	return q, nil
}

// AddQuery appends a Uri-Query option.
func (options Options) AddQuery(query string) Options {
	return options.Add(Option{ID: URIQuery, Value: []byte(query)})
}

// Query returns the value of the first "key=value" query with key.
func (options Options) Query(key string) (string, bool) {
	for _, q := range options.strings(URIQuery) {
		k, v, found := strings.Cut(q, "=")
		if k == key {
			if !found {
				return "", true
			}
			return v, true
		}
	}
	return "", false
}

// ContentFormat returns the Content-Format option.
func (options Options) ContentFormat() (MediaType, error) {
	v, err := options.GetUint32(ContentFormat)
	return MediaType(v), err
}

// SetContentFormat replaces the Content-Format option.
func (options Options) SetContentFormat(cf MediaType) Options {
	return options.SetUint32(ContentFormat, uint32(cf))
}

// Observe returns the Observe option.
func (options Options) Observe() (uint32, error) {
	return options.GetUint32(Observe)
}

// SetObserve replaces the Observe option. The value is truncated to 24 bits.
func (options Options) SetObserve(seq uint32) Options {
	return options.SetUint32(Observe, seq&0xffffff)
}

// ETag returns the first ETag option.
func (options Options) ETag() ([]byte, error) {
	return options.GetBytes(ETag)
}

// SetETag replaces the ETag option.
func (options Options) SetETag(tag []byte) Options {
	return options.Set(Option{ID: ETag, Value: tag})
}

// Size returns the number of bytes the options occupy on the wire.
func (options Options) Size() int {
	size := 0
	prev := OptionID(0)
	for _, o := range options {
		size += o.Size(prev)
		prev = o.ID
	}
	return size
}

// Marshal writes the options in wire order.
func (options Options) Marshal(buf []byte) (int, error) {
	size := options.Size()
	if len(buf) < size {
		return size, ErrTooSmall
	}
	n := 0
	prev := OptionID(0)
	for _, o := range options {
		l, err := o.Marshal(buf[n:], prev)
		if err != nil {
			return -1, err
		}
		n += l
		prev = o.ID
	}
	return n, nil
}

// Unmarshal parses options until the payload marker or the end of data and
// returns the number of bytes consumed. The payload marker is not consumed.
// Options with an illegal value length and unknown elective options are
// skipped (RFC7252 section 5.4). Values alias data.
func (options *Options) Unmarshal(data []byte, optionDefs map[OptionID]OptionDef) (int, error) {
	prev := 0
	processed := 0
	for len(data) > 0 {
		if data[0] == 0xff {
			return processed, nil
		}
		delta := int(data[0] >> 4)
		length := int(data[0] & 0x0f)
		if delta == ExtendOptionError || length == ExtendOptionError {
			return -1, ErrOptionUnexpectedExtendMarker
		}
		data = data[1:]
		processed++

		n, delta, err := parseExtOpt(data, delta)
		if err != nil {
			return -1, err
		}
		data = data[n:]
		processed += n
		n, length, err = parseExtOpt(data, length)
		if err != nil {
			return -1, err
		}
		data = data[n:]
		processed += n
		if len(data) < length {
			return -1, ErrOptionTruncated
		}

		id := OptionID(prev + delta)
		prev += delta
		value := data[:length]
		data = data[length:]
		processed += length

		def, ok := optionDefs[id]
		if !ok {
			if id.Critical() {
				return -1, fmt.Errorf("%w: %v", ErrCriticalOption, id)
			}
			continue
		}
		if length < def.MinLen || length > def.MaxLen {
			continue
		}
		*options = append(*options, Option{ID: id, Value: value})
	}
	return processed, nil
}

// EncodeUint32 returns the shortest big-endian encoding of value.
func EncodeUint32(value uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], value)
	i := 0
	for i < 4 && b[i] == 0 {
		i++
	}
	return append([]byte(nil), b[i:]...)
}

// DecodeUint32 decodes an uint option value of at most four bytes.
func DecodeUint32(buf []byte) (uint32, error) {
	if len(buf) > 4 {
		return 0, ErrInvalidValueLength
	}
	var v uint32
	for _, b := range buf {
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// IsNotFound reports whether err means a missing option.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOptionNotFound)
}
