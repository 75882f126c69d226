package thinkup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Outcome classifies a completed call.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeAPIError  Outcome = "api_error"
	OutcomeHTTPError Outcome = "http_error"
)

// ErrorDescriptor is the type/message pair the API reports on failure.
// Fields absent from the response stay empty.
type ErrorDescriptor struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Result is the outcome of a single call together with the request it was built from.
type Result struct {
	CallType   string           `json:"call_type"`
	Outcome    Outcome          `json:"outcome"`
	Data       json.RawMessage  `json:"data,omitempty"`
	StatusCode int              `json:"status_code"`
	URL        string           `json:"url"`
	Args       Args             `json:"args"`
	APIError   *ErrorDescriptor `json:"api_error,omitempty"`
	Elapsed    time.Duration    `json:"elapsed"`
}

// OK reports whether the call produced a payload.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Decode unmarshals the payload into v.
func (r Result) Decode(v any) error {
	if !r.OK() {
		return fmt.Errorf("decode %s: no payload (%s)", r.CallType, r.Outcome)
	}
	return json.Unmarshal(r.Data, v)
}

// User is the author block embedded in a post.
type User struct {
	ScreenName string `json:"screen_name"`
	Name       string `json:"name,omitempty"`
}

// Post is the part of a ThinkUp post record the relay renders. Raw keeps the full record.
type Post struct {
	Text    string          `json:"text"`
	User    User            `json:"user"`
	PubDate string          `json:"pub_date,omitempty"`
	Network string          `json:"network,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// Posts decodes the payload as a list of posts. An array is used as is, an object
// with an "items" array yields its items, and any other object is a single post.
func (r Result) Posts() ([]Post, error) {
	if !r.OK() {
		return nil, fmt.Errorf("posts %s: no payload (%s)", r.CallType, r.Outcome)
	}

	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 {
		return nil, errors.New("posts: empty payload")
	}

	switch data[0] {
	case '[':
		return decodePostList(data)
	case '{':
		var envelope struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decode post envelope: %w", err)
		}
		if items := bytes.TrimSpace(envelope.Items); len(items) > 0 && items[0] == '[' {
			return decodePostList(items)
		}
		post, err := decodePost(data)
		if err != nil {
			return nil, err
		}
		return []Post{post}, nil
	default:
		return nil, fmt.Errorf("posts: unexpected payload starting with %q", data[0])
	}
}

func decodePostList(data []byte) ([]Post, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode post list: %w", err)
	}
	posts := make([]Post, 0, len(raws))
	for i, raw := range raws {
		post, err := decodePost(raw)
		if err != nil {
			return nil, fmt.Errorf("post[%d]: %w", i, err)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func decodePost(raw json.RawMessage) (Post, error) {
	var p Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return Post{}, fmt.Errorf("decode post: %w", err)
	}
	p.Raw = raw
	return p, nil
}
