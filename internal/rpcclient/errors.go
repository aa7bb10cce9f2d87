package rpcclient

import "errors"

// ErrRPC marks a transport-level failure talking to the node (connection
// refused, timeout, malformed response).
// A JSON-RPC error object the node itself returns is an *RPCError, also
// errors.Is-comparable to ErrRPC via Unwrap.
var ErrRPC = errors.New("rpcclient: node unreachable or returned an error")
