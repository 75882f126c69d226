package publishers

import "time"

// Event describes one relayed ThinkUp call. Response payloads are never included.
type Event struct {
	CallID       string            `json:"call_id"`
	Route        string            `json:"route,omitempty"`
	CallType     string            `json:"call_type"`
	URL          string            `json:"url"`
	Args         map[string]string `json:"args,omitempty"`
	StatusCode   int               `json:"status_code"`
	Outcome      string            `json:"outcome"`
	ErrorType    string            `json:"error_type,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Failure      string            `json:"failure,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// attributes returns the routing attributes attached to queue and topic messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"call_type": e.CallType,
		"outcome":   e.Outcome,
	}
}
