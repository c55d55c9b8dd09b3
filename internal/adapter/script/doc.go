// Package script is an in-process provider whose answers come from a Lua
// script run in a sandboxed gopher-lua state.
//
// A script defines global functions named after request kinds. Each
// receives a request table and returns the response body:
//
//	function completion(req)
//	  if req.prefix == "" then return nil end
//	  return { { label = "hello", kind = "text", detail = req.language } }
//	end
//
//	function hover(req)
//	  return codeintel.word_at(req.text, req.line, req.column)
//	end
//
// An optional on_notification(kind, req) receives every notification.
// Kinds without a handler are answered with nil. The codeintel module
// offers text helpers and logging; io, os and debug are not available.
//
// gopher-lua states are not goroutine-safe, so every call runs on the
// adapter's private loop.
package script
