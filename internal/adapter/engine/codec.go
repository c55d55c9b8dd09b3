package engine

import (
	"encoding/json"
	"strings"

	"github.com/dshills/codeintel/internal/document"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Buffer events understood by the daemon.
const (
	eventReadyToParse = "FileReadyToParse"
	eventSave         = "FileSave"
	eventUnload       = "BufferUnload"
)

// Daemon endpoints.
const (
	pathReady       = "/ready"
	pathShutdown    = "/shutdown"
	pathEvent       = "/event_notification"
	pathCompletions = "/completions"
	pathSignature   = "/signature_help"
	pathCommand     = "/run_completer_command"
)

// commands maps request kinds served through /run_completer_command.
var commands = map[provider.Kind]string{
	provider.KindHover:      "GetDoc",
	provider.KindDefinition: "GoTo",
	provider.KindReferences: "GoToReferences",
	provider.KindRename:     "RefactorRename",
	provider.KindCodeAction: "FixIt",
}

// endpoint returns the path serving kind, or "" when the daemon has none.
func endpoint(kind provider.Kind) string {
	switch kind {
	case provider.KindCompletion:
		return pathCompletions
	case provider.KindSignatureHelp:
		return pathSignature
	}
	if _, ok := commands[kind]; ok {
		return pathCommand
	}
	return ""
}

// builder accumulates sjson edits and keeps the first error.
type builder struct {
	buf []byte
	err error
}

func (b *builder) set(path string, v any) {
	if b.err != nil {
		return
	}
	b.buf, b.err = sjson.SetBytes(b.buf, path, v)
}

// fileRequest encodes the fields every daemon call carries: the file, its
// type, the cursor and the buffer contents.
func fileRequest(language string, p provider.Payload, text string) ([]byte, error) {
	line, col := wirePosition(text, p.Line, p.Column)
	b := &builder{buf: []byte(`{}`)}
	b.set("filepath", p.Path)
	b.set("filetypes", []string{language})
	b.set("line_num", line)
	b.set("column_num", col)
	b.set("file_data", map[string]any{
		p.Path: map[string]any{"contents": text, "filetypes": []string{language}},
	})
	return b.buf, b.err
}

func eventRequest(event, language string, p provider.Payload, text string) ([]byte, error) {
	body, err := fileRequest(language, p, text)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "event_name", event)
}

func commandRequest(kind provider.Kind, language string, p provider.Payload, text string) ([]byte, error) {
	body, err := fileRequest(language, p, text)
	if err != nil {
		return nil, err
	}
	args := []string{commands[kind]}
	if kind == provider.KindRename {
		args = append(args, p.NewName)
	}
	b := &builder{buf: body}
	b.set("command_arguments", args)
	b.set("completer_target", "filetype_default")
	return b.buf, b.err
}

// wirePosition converts a zero-based line and UTF-16 column to the
// daemon's one-based line and one-based byte column.
func wirePosition(text string, line, column int) (int, int) {
	if text == "" {
		return line + 1, column + 1
	}
	return line + 1, document.ByteColumn(text, line, column) + 1
}

// textLookup returns the mirrored text of a file.
type textLookup func(path string) (string, bool)

// decode turns a daemon reply into the body handed to the collector.
func decode(kind provider.Kind, raw []byte, lookup textLookup) any {
	res := gjson.ParseBytes(raw)
	if !res.Exists() || res.Type == gjson.Null {
		return nil
	}

	switch kind {
	case provider.KindCompletion:
		return completions(res.Get("completions"))
	case provider.KindHover:
		text := strings.TrimSpace(res.Get("detailed_info").String())
		if text == "" {
			text = strings.TrimSpace(res.Get("message").String())
		}
		if text == "" {
			return nil
		}
		return text
	case provider.KindDefinition, provider.KindReferences:
		return locations(res, lookup)
	case provider.KindSignatureHelp:
		help := res.Get("signature_help")
		if len(help.Get("signatures").Array()) == 0 {
			return nil
		}
		res = help
	case provider.KindRename, provider.KindCodeAction:
		if len(res.Get("fixits").Array()) == 0 {
			return nil
		}
	}

	var v any
	if err := json.Unmarshal([]byte(res.Raw), &v); err != nil {
		return nil
	}
	if provider.IsEmpty(v) {
		return nil
	}
	return v
}

var completionKinds = map[string]provider.CompletionKind{
	"CLASS":      provider.CompletionClass,
	"STRUCT":     provider.CompletionClass,
	"TYPE":       provider.CompletionClass,
	"ENUM":       provider.CompletionEnum,
	"FUNCTION":   provider.CompletionFunction,
	"METHOD":     provider.CompletionMethod,
	"MEMBER":     provider.CompletionField,
	"VARIABLE":   provider.CompletionVariable,
	"PARAMETER":  provider.CompletionVariable,
	"MACRO":      provider.CompletionConstructor,
	"MODULE":     provider.CompletionModule,
	"NAMESPACE":  provider.CompletionModule,
	"PACKAGE":    provider.CompletionModule,
	"KEYWORD":    provider.CompletionKeyword,
	"IDENTIFIER": provider.CompletionText,
}

func completions(res gjson.Result) []provider.CompletionItem {
	var items []provider.CompletionItem
	res.ForEach(func(_, v gjson.Result) bool {
		text := v.Get("insertion_text").String()
		if text == "" {
			return true
		}
		label := v.Get("menu_text").String()
		if label == "" {
			label = text
		}
		kind, ok := completionKinds[strings.ToUpper(v.Get("kind").String())]
		if !ok {
			kind = provider.CompletionText
		}
		items = append(items, provider.CompletionItem{
			Label:         label,
			InsertText:    text,
			Kind:          kind,
			Detail:        v.Get("extra_menu_info").String(),
			Documentation: v.Get("detailed_info").String(),
		})
		return true
	})
	if len(items) == 0 {
		return nil
	}
	return items
}

// locations decodes a single location or a list of them. Byte columns are
// converted to UTF-16 when the file is mirrored.
func locations(res gjson.Result, lookup textLookup) []provider.Location {
	var out []provider.Location
	add := func(v gjson.Result) {
		path := v.Get("filepath").String()
		if path == "" {
			return
		}
		line := int(v.Get("line_num").Int()) - 1
		col := int(v.Get("column_num").Int()) - 1
		if line < 0 {
			line = 0
		}
		if col < 0 {
			col = 0
		}
		if lookup != nil {
			if text, ok := lookup(path); ok {
				col = document.UTF16Column(text, line, col)
			}
		}
		out = append(out, provider.Location{Path: path, Line: line, Column: col, EndLine: line, EndColumn: col})
	}
	if res.IsArray() {
		res.ForEach(func(_, v gjson.Result) bool {
			add(v)
			return true
		})
	} else {
		add(res)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
