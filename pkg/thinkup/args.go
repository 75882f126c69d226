package thinkup

import (
	"net/url"
	"sort"
	"strings"
)

// Args maps query parameter names to their values.
type Args map[string]string

// Clone returns an independent copy of a.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// mergeArgs combines required and optional arguments. Required keys identify
// the resource being queried, so they win on collision.
func mergeArgs(required, optional Args) Args {
	merged := make(Args, len(required)+len(optional))
	for k, v := range optional {
		merged[k] = v
	}
	for k, v := range required {
		merged[k] = v
	}
	return merged
}

// encode renders a as a sequence of "&key=value" pairs in key order. With raw set,
// keys and values are written verbatim.
func (a Args) encode(raw bool) string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(escape(k, raw))
		b.WriteByte('=')
		b.WriteString(escape(a[k], raw))
	}
	return b.String()
}

func escape(s string, raw bool) string {
	if raw {
		return s
	}
	return url.QueryEscape(s)
}
