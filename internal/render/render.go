// Package render turns call results into the small HTML fragments the relay serves.
package render

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/samvad-hq/thinkup-relay/pkg/thinkup"
)

const lineBreak = "<br />"

// Posts renders one "screen_name: text<br />" line per post. Both parts are escaped.
func Posts(posts []thinkup.Post) string {
	var b strings.Builder
	for _, p := range posts {
		b.WriteString(html.EscapeString(p.User.ScreenName))
		b.WriteString(": ")
		b.WriteString(html.EscapeString(p.Text))
		b.WriteString(lineBreak)
	}
	return b.String()
}

// Diagnostics dumps the client's last-call state as escaped text inside a <pre> block.
func Diagnostics(base string, d thinkup.Diagnostics) string {
	keys := make([]string, 0, len(d.Args))
	for k := range d.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%q=>%q", k, d.Args[k]))
	}

	dump := fmt.Sprintf(
		"#<ThinkUpClient base_url=%q last_response_code=%d last_error={type: %q, message: %q} last_args={%s} last_url=%q>",
		base, d.StatusCode, d.Error.Type, d.Error.Message, strings.Join(args, ", "), d.URL,
	)
	return `<pre class="diagnostics">` + html.EscapeString(dump) + `</pre>`
}

// Result renders the posts of a successful result, or the diagnostics fallback
// when there is no payload or it does not decode as posts.
func Result(base string, res thinkup.Result, d thinkup.Diagnostics) string {
	if !res.OK() {
		return Diagnostics(base, d)
	}
	posts, err := res.Posts()
	if err != nil {
		return Diagnostics(base, d)
	}
	return Posts(posts)
}
