package lsp

import (
	"github.com/dshills/codeintel/internal/provider"
)

// requestMethod maps a request kind to its language-server method.
func requestMethod(kind provider.Kind) (string, bool) {
	switch kind {
	case provider.KindCompletion:
		return MethodCompletion, true
	case provider.KindHover:
		return MethodHover, true
	case provider.KindSignatureHelp:
		return MethodSignatureHelp, true
	case provider.KindDefinition:
		return MethodDefinition, true
	case provider.KindDocumentSymbol:
		return MethodDocumentSymbol, true
	case provider.KindFoldingRange:
		return MethodFoldingRange, true
	case provider.KindRename:
		return MethodRename, true
	case provider.KindCodeAction:
		return MethodCodeAction, true
	case provider.KindDocumentHighlight:
		return MethodDocumentHighlight, true
	case provider.KindReferences:
		return MethodReferences, true
	default:
		return "", false
	}
}

// requestParams builds the parameters for a request kind.
func requestParams(kind provider.Kind, p provider.Payload) any {
	doc := TextDocumentIdentifier{URI: FilePathToURI(p.Path)}
	pos := TextDocumentPositionParams{
		TextDocument: doc,
		Position:     Position{Line: p.Line, Character: p.Column},
	}

	switch kind {
	case provider.KindCompletion:
		return CompletionParams{
			TextDocumentPositionParams: pos,
			Context:                    &CompletionContext{TriggerKind: 1},
		}
	case provider.KindReferences:
		return ReferenceParams{
			TextDocumentPositionParams: pos,
			Context:                    ReferenceContext{IncludeDeclaration: p.IncludeDeclaration},
		}
	case provider.KindRename:
		return RenameParams{TextDocumentPositionParams: pos, NewName: p.NewName}
	case provider.KindDocumentSymbol, provider.KindFoldingRange:
		return DocumentParams{TextDocument: doc}
	case provider.KindCodeAction:
		end := Position{Line: p.EndLine, Character: p.EndColumn}
		if p.EndLine == 0 && p.EndColumn == 0 {
			end = pos.Position
		}
		return CodeActionParams{
			TextDocument: doc,
			Range:        Range{Start: pos.Position, End: end},
			Context:      CodeActionContext{Diagnostics: []any{}},
		}
	default:
		return pos
	}
}

// fileChangeEvents converts watched file changes.
func fileChangeEvents(changes []provider.FileChange) []FileEvent {
	out := make([]FileEvent, 0, len(changes))
	for _, c := range changes {
		out = append(out, FileEvent{URI: FilePathToURI(c.Path), Type: int(c.Type)})
	}
	return out
}

func folders(paths []string) []WorkspaceFolder {
	out := make([]WorkspaceFolder, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			out = append(out, folder(p))
		}
	}
	return out
}
