package thinkup

import "errors"

var (
	// ErrTransport marks failures to reach the remote service (DNS, refused
	// connections, timeouts, cancelled contexts).
	ErrTransport = errors.New("thinkup transport failure")
	// ErrDecode marks a 200 response whose body is not valid JSON.
	ErrDecode = errors.New("thinkup response is not valid json")
	// ErrUnknownCallType is returned by Invoke for call types missing from the catalog.
	ErrUnknownCallType = errors.New("unknown thinkup call type")
	// ErrArgumentCount is returned by Invoke when the positional values do not match
	// the call type's required arguments.
	ErrArgumentCount = errors.New("wrong number of required arguments")
)
