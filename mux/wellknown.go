package mux

import (
	"strconv"
	"strings"

	"github.com/plgd-dev/coap-engine/message"
	"github.com/plgd-dev/coap-engine/message/codes"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// WellKnownCore is the path of the resource discovery resource.
const WellKnownCore = ".well-known/core"

// Attribute is a link-format target attribute of a resource.
type Attribute struct {
	Key   string
	Value string
	// Quoted values are written in double quotes.
	Quoted bool
}

type Attributes []Attribute

func ResourceType(rt string) Attribute {
	return Attribute{Key: "rt", Value: rt, Quoted: true}
}

func Interface(ifd string) Attribute {
	return Attribute{Key: "if", Value: ifd, Quoted: true}
}

func Title(title string) Attribute {
	return Attribute{Key: "title", Value: title, Quoted: true}
}

func ContentType(cf message.MediaType) Attribute {
	return Attribute{Key: "ct", Value: strconv.Itoa(int(cf))}
}

// Observable marks a resource that accepts observe registrations.
func Observable() Attribute {
	return Attribute{Key: "obs"}
}

func (a Attribute) String() string {
	switch {
	case a.Value == "" && !a.Quoted:
		return a.Key
	case a.Quoted:
		return a.Key + `="` + a.Value + `"`
	}
	return a.Key + "=" + a.Value
}

// matches reports whether the attribute satisfies a "key=value" query. A
// value ending with '*' matches by prefix.
func (attrs Attributes) matches(query string) bool {
	key, value, _ := strings.Cut(query, "=")
	for _, a := range attrs {
		if a.Key != key {
			continue
		}
		if prefix, ok := strings.CutSuffix(value, "*"); ok {
			if strings.HasPrefix(a.Value, prefix) {
				return true
			}
			continue
		}
		if a.Value == value {
			return true
		}
	}
	return false
}

// LinkFormat describes the registered resources in CoRE link format, sorted
// by path. A non-empty filter ("key=value") keeps only the resources with a
// matching attribute.
func (r *Router) LinkFormat(filter string) string {
	routes := r.GetRoutes()
	patterns := maps.Keys(routes)
	slices.Sort(patterns)
	links := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == WellKnownCore {
			continue
		}
		route := routes[p]
		if filter != "" && !route.attributes.matches(filter) {
			continue
		}
		var b strings.Builder
		b.WriteString("</")
		b.WriteString(p)
		b.WriteString(">")
		for _, a := range route.attributes {
			b.WriteString(";")
			b.WriteString(a.String())
		}
		links = append(links, b.String())
	}
	return strings.Join(links, ",")
}

// serveWellKnownCore serves the link format in blocks of the preferred size.
func (r *Router) serveWellKnownCore(w ResponseWriter, req *Message) {
	if req.Code != codes.GET {
		_ = w.SetResponse(codes.MethodNotAllowed, message.TextPlain, nil)
		return
	}
	filter := ""
	if queries, err := req.Options.Queries(); err == nil && len(queries) > 0 {
		filter = queries[0]
	}
	links := []byte(r.LinkFormat(filter))
	start := int(w.Offset())
	size := w.PreferredSize()
	if start >= len(links) {
		// an empty representation makes the requested block out of range
		_ = w.SetResponse(codes.Content, message.AppLinkFormat, nil)
		return
	}
	end := min(start+size, len(links))
	if err := w.SetResponse(codes.Content, message.AppLinkFormat, links[start:end]); err != nil {
		_ = w.SetResponse(codes.InternalServerError, message.TextPlain, nil)
		return
	}
	switch {
	case end < len(links):
		w.SetOffset(int32(end))
	case start > 0:
		w.SetOffset(-1)
	}
}
