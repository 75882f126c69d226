// Package routes maps public relay paths to ThinkUp call types.
package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samvad-hq/thinkup-relay/pkg/thinkup"
	"gopkg.in/yaml.v3"
)

// Route exposes one call type at Path. Params names the path parameters bound, in
// order, to the call type's required arguments.
type Route struct {
	Path   string   `json:"path" yaml:"path"`
	Call   string   `json:"call" yaml:"call"`
	Params []string `json:"params" yaml:"params"`
}

type routesFile struct {
	Routes []Route `json:"routes" yaml:"routes"`
}

// Registry holds validated routes in declaration order.
type Registry struct {
	mu     sync.RWMutex
	routes []Route
	idx    map[string]Route
}

// DefaultRoutes mirrors the paths the relay has always served, plus the range query.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/user_posts/:username", Call: thinkup.CallUserPosts},
		{Path: "/user_posts_in_range/:username/:from/:to", Call: thinkup.CallUserPostsInRange},
		{Path: "/user_questions/:username", Call: thinkup.CallUserQuestions},
		{Path: "/user_replies/:username", Call: thinkup.CallUserReplies},
		{Path: "/user_mentions/:username", Call: thinkup.CallUserMentions},
		{Path: "/most_replied_to/:username", Call: thinkup.CallUserPostsMostRepliedTo},
		{Path: "/most_retweeted/:username", Call: thinkup.CallUserPostsMostRetweeted},
		{Path: "/post/:post_id", Call: thinkup.CallPost},
		{Path: "/post_replies/:post_id", Call: thinkup.CallPostReplies},
		{Path: "/post_retweets/:post_id", Call: thinkup.CallPostRetweets},
		{Path: "/related_posts/:post_id", Call: thinkup.CallRelatedPosts},
	}
}

// Default returns a registry built from DefaultRoutes.
func Default() *Registry {
	reg, err := NewRegistry(DefaultRoutes())
	if err != nil {
		panic(fmt.Sprintf("default routes are invalid: %v", err))
	}
	return reg
}

// LoadRegistry loads routes from a YAML/JSON file. An empty path yields the defaults.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open routes file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}

	parsed, err := parseRoutesFile(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Routes) == 0 {
		return nil, errors.New("routes file contains no routes entries")
	}
	return NewRegistry(parsed.Routes)
}

// NewRegistry sanitizes and validates routes.
func NewRegistry(routes []Route) (*Registry, error) {
	reg := &Registry{
		routes: make([]Route, 0, len(routes)),
		idx:    make(map[string]Route, len(routes)),
	}
	for i, r := range routes {
		r = sanitizeRoute(r)
		if err := validateRoute(r); err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		if _, exists := reg.idx[r.Path]; exists {
			return nil, fmt.Errorf("duplicate route path %q", r.Path)
		}
		reg.routes = append(reg.routes, r)
		reg.idx[r.Path] = r
	}
	return reg, nil
}

func parseRoutesFile(data []byte, ext string) (routesFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var f routesFile
		if err := d.fn(data, &f); err == nil {
			return f, nil
		}
	}
	return routesFile{}, errors.New("routes file format not recognized (expected YAML or JSON)")
}

// sanitizeRoute trims fields and derives Params from the call type when omitted.
func sanitizeRoute(r Route) Route {
	r.Path = strings.TrimSpace(r.Path)
	r.Call = strings.ToLower(strings.TrimSpace(r.Call))
	params := make([]string, 0, len(r.Params))
	for _, p := range r.Params {
		if p = strings.TrimSpace(p); p != "" {
			params = append(params, p)
		}
	}
	if len(params) == 0 {
		if ep, ok := thinkup.LookupEndpoint(r.Call); ok {
			params = ep.Required
		}
	}
	r.Params = params
	return r
}

func validateRoute(r Route) error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("path %q must start with /", r.Path)
	}
	ep, ok := thinkup.LookupEndpoint(r.Call)
	if !ok {
		return fmt.Errorf("unknown call %q for path %q", r.Call, r.Path)
	}
	if len(r.Params) != len(ep.Required) {
		return fmt.Errorf("path %q: call %s needs params %v, got %v", r.Path, r.Call, ep.Required, r.Params)
	}
	segments := pathParams(r.Path)
	for _, p := range r.Params {
		if !segments[p] {
			return fmt.Errorf("path %q has no :%s segment", r.Path, p)
		}
	}
	return nil
}

func pathParams(path string) map[string]bool {
	out := map[string]bool{}
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			out[seg[1:]] = true
		}
	}
	return out
}

// All returns a copy of the routes in declaration order.
func (r *Registry) All() []Route {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// ByPath returns the route registered at path.
func (r *Registry) ByPath(path string) (Route, bool) {
	if r == nil {
		return Route{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.idx[strings.TrimSpace(path)]
	return route, ok
}
