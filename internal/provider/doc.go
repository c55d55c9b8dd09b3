// Package provider defines the contract every code-intelligence backend
// implements, and the value types that flow between the editor, the core and
// the backends.
//
// A Provider is driven entirely by the core: Start, Shutdown, SendRequest and
// SendNotification must return promptly and never block on I/O. Results come
// back asynchronously through the Sink handed to the provider's Factory:
//
//	Ready(name, languages)   after a successful Start
//	Response(name, id, body) at most once per request id
//	Down(name, err)          when the transport is lost
//
// Adapters only encode and decode. They never retry, time out or merge;
// those policies belong to the registry and the router.
package provider
