// Package router dispatches editor requests to providers and collects their
// answers.
//
// Every request gets a monotonically increasing id and is sent to each
// running provider that supports its language. The collector then waits for
// the request's wait set, the authoritative providers for that kind, under a
// per-request time budget:
//
//   - before the deadline, the request is decided once every wait-set
//     provider has answered;
//   - after the deadline, it is decided as soon as every wait-set provider
//     has answered or any provider has produced a non-empty answer.
//
// When no authoritative provider is running the wait set falls back to
// every provider the request was sent to. Completion requests are subject to
// supersession: only the newest completion per originator is ever delivered.
//
// Router state is confined to the core loop.
package router
