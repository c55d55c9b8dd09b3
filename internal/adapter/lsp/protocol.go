package lsp

import (
	"net/url"
	"path/filepath"
	"runtime"
)

// Method names used by the adapter.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "initialized"
	MethodShutdown    = "shutdown"
	MethodExit        = "exit"

	MethodCompletion        = "textDocument/completion"
	MethodHover             = "textDocument/hover"
	MethodSignatureHelp     = "textDocument/signatureHelp"
	MethodDefinition        = "textDocument/definition"
	MethodDocumentSymbol    = "textDocument/documentSymbol"
	MethodFoldingRange      = "textDocument/foldingRange"
	MethodRename            = "textDocument/rename"
	MethodCodeAction        = "textDocument/codeAction"
	MethodDocumentHighlight = "textDocument/documentHighlight"
	MethodReferences        = "textDocument/references"

	MethodDidOpen   = "textDocument/didOpen"
	MethodDidChange = "textDocument/didChange"
	MethodDidSave   = "textDocument/didSave"
	MethodDidClose  = "textDocument/didClose"

	MethodDidChangeWorkspaceFolders = "workspace/didChangeWorkspaceFolders"
	MethodDidChangeConfiguration    = "workspace/didChangeConfiguration"
	MethodDidChangeWatchedFiles     = "workspace/didChangeWatchedFiles"

	MethodWorkspaceConfiguration = "workspace/configuration"
	MethodWorkspaceFolders       = "workspace/workspaceFolders"
	MethodRegisterCapability     = "client/registerCapability"
	MethodUnregisterCapability   = "client/unregisterCapability"
	MethodWorkDoneProgressCreate = "window/workDoneProgress/create"
	MethodShowMessage            = "window/showMessage"
	MethodLogMessage             = "window/logMessage"
	MethodPublishDiagnostics     = "textDocument/publishDiagnostics"
)

// DocumentURI is a file URI.
type DocumentURI string

// Position is a zero-based line and UTF-16 character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier names a document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier names a document at a version.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem is an opened document.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is a document and a position in it.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextDocumentContentChangeEvent is a full-text change. The adapter always
// syncs full text; patches are applied to its own mirror first.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidOpenTextDocumentParams are parameters for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams are parameters for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidSaveTextDocumentParams are parameters for textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

// DidCloseTextDocumentParams are parameters for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// CompletionParams are parameters for textDocument/completion.
type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

// CompletionContext describes how completion was triggered.
type CompletionContext struct {
	TriggerKind int `json:"triggerKind"`
}

// ReferenceParams are parameters for textDocument/references.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// ReferenceContext controls whether the declaration is included.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// RenameParams are parameters for textDocument/rename.
type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// DocumentParams carry only a document, for documentSymbol and
// foldingRange.
type DocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// CodeActionParams are parameters for textDocument/codeAction.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

// CodeActionContext carries diagnostics for code actions. The adapter does
// not track diagnostics and always sends an empty list.
type CodeActionContext struct {
	Diagnostics []any `json:"diagnostics"`
}

// WorkspaceFolder is a root folder.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// WorkspaceFoldersChangeEvent lists added and removed roots.
type WorkspaceFoldersChangeEvent struct {
	Added   []WorkspaceFolder `json:"added"`
	Removed []WorkspaceFolder `json:"removed"`
}

// DidChangeWorkspaceFoldersParams are parameters for
// workspace/didChangeWorkspaceFolders.
type DidChangeWorkspaceFoldersParams struct {
	Event WorkspaceFoldersChangeEvent `json:"event"`
}

// DidChangeConfigurationParams are parameters for
// workspace/didChangeConfiguration.
type DidChangeConfigurationParams struct {
	Settings any `json:"settings"`
}

// FileEvent is one watched file change.
type FileEvent struct {
	URI  DocumentURI `json:"uri"`
	Type int         `json:"type"`
}

// DidChangeWatchedFilesParams are parameters for
// workspace/didChangeWatchedFiles.
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// InitializeParams are parameters for initialize.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	ClientInfo            *ClientInfo        `json:"clientInfo,omitempty"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	RootPath              string             `json:"rootPath,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
	Trace                 string             `json:"trace,omitempty"`
}

// ClientInfo identifies the client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ClientCapabilities are the capabilities announced in initialize. They are
// kept as plain maps; the adapter only announces what it handles.
type ClientCapabilities struct {
	Workspace    map[string]any `json:"workspace,omitempty"`
	TextDocument map[string]any `json:"textDocument,omitempty"`
}

// Text document sync kinds.
const (
	SyncNone        = 0
	SyncFull        = 1
	SyncIncremental = 2
)

// DefaultClientCapabilities returns the capabilities the adapter announces.
func DefaultClientCapabilities() ClientCapabilities {
	markup := []string{"markdown", "plaintext"}
	return ClientCapabilities{
		Workspace: map[string]any{
			"workspaceFolders":       true,
			"configuration":          true,
			"didChangeConfiguration": map[string]any{"dynamicRegistration": false},
			"didChangeWatchedFiles":  map[string]any{"dynamicRegistration": false},
		},
		TextDocument: map[string]any{
			"synchronization": map[string]any{"didSave": true},
			"completion": map[string]any{
				"completionItem": map[string]any{
					"snippetSupport":      true,
					"documentationFormat": markup,
				},
			},
			"hover":             map[string]any{"contentFormat": markup},
			"signatureHelp":     map[string]any{"signatureInformation": map[string]any{"documentationFormat": markup}},
			"definition":        map[string]any{"linkSupport": true},
			"references":        map[string]any{},
			"documentHighlight": map[string]any{},
			"documentSymbol":    map[string]any{"hierarchicalDocumentSymbolSupport": true},
			"foldingRange":      map[string]any{"lineFoldingOnly": true},
			"codeAction":        map[string]any{},
			"rename":            map[string]any{},
		},
	}
}

// FilePathToURI converts a file path to a file URI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	path = filepath.ToSlash(path)
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}
	u := &url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file URI back to a path. Non-file URIs are
// returned unchanged.
func URIToFilePath(uri DocumentURI) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	path := u.Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

func folder(path string) WorkspaceFolder {
	return WorkspaceFolder{URI: FilePathToURI(path), Name: filepath.Base(path)}
}
