// Package lsp implements the language-server provider.
//
// The adapter speaks JSON-RPC 2.0 with LSP base-protocol framing
// (sourcegraph/jsonrpc2 with the VS Code object codec) to a server started
// as a subprocess on stdio, or reached over TCP. It maps request kinds to
// textDocument methods through a static switch, mirrors open documents and
// always syncs full text.
//
// Writes to the server happen on a private worker loop so that
// notifications for one file reach the server in the order the core issued
// them. Responses are decoded into provider bodies and reported through the
// sink. The adapter never retries and never times out a request: a request
// that fails is simply never answered and the collector's deadline covers
// it. A server that exits or drops the connection is reported as down and
// the registry restarts it.
package lsp
