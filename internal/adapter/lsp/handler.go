package lsp

import (
	"context"
	"encoding/json"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tidwall/gjson"
)

// handler answers server-to-client requests.
type handler struct {
	adapter *Adapter
}

func (h *handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	a := h.adapter
	log := a.logger.WithField("method", req.Method)

	var params []byte
	if req.Params != nil {
		params = *req.Params
	}

	switch req.Method {
	case MethodPublishDiagnostics, MethodShowMessage, MethodLogMessage:
		log.Debug("%s", gjson.GetBytes(params, "message").String())
		return

	case MethodWorkspaceConfiguration:
		// One result per requested item: the section of the settings, or
		// all settings when no section is named.
		a.mu.Lock()
		settings := a.settings
		a.mu.Unlock()
		var results []any
		gjson.GetBytes(params, "items").ForEach(func(_, item gjson.Result) bool {
			results = append(results, section(settings, item.Get("section").String()))
			return true
		})
		if results == nil {
			results = []any{}
		}
		h.reply(ctx, conn, req, results)
		return

	case MethodWorkspaceFolders:
		a.mu.Lock()
		root := a.root
		a.mu.Unlock()
		h.reply(ctx, conn, req, []WorkspaceFolder{folder(root)})
		return

	case MethodRegisterCapability, MethodUnregisterCapability, MethodWorkDoneProgressCreate:
		h.reply(ctx, conn, req, nil)
		return
	}

	if req.Notif {
		return
	}
	log.Debug("unhandled server request")
	if err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeMethodNotFound,
		Message: "method not found: " + req.Method,
	}); err != nil {
		log.Debug("reply failed: %v", err)
	}
}

func (h *handler) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, result any) {
	if req.Notif {
		return
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.adapter.logger.WithField("method", req.Method).Debug("reply failed: %v", err)
	}
}

// section walks a dotted settings path. Missing sections are null.
func section(settings map[string]any, path string) any {
	if path == "" {
		return settings
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil
	}
	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}
