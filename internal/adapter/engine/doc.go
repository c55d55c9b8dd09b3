// Package engine adapts a local HTTP completion daemon to the provider
// contract.
//
// The daemon speaks JSON over HTTP: buffer events go to
// /event_notification, completions to /completions, signature help to
// /signature_help and everything else to /run_completer_command. Positions
// on the wire are one-based lines and one-based byte columns. The adapter
// mirrors open buffers so every call can carry the current file contents.
//
// The adapter can spawn the daemon itself or attach to one that is already
// listening ("external"). Readiness is polled on /ready.
package engine
