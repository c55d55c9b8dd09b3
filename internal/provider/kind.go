package provider

import "fmt"

// Kind identifies a request or notification type.
type Kind string

// Request kinds. Requests expect a response.
const (
	KindCompletion        Kind = "completion"
	KindHover             Kind = "hover"
	KindSignatureHelp     Kind = "signature_help"
	KindDefinition        Kind = "definition"
	KindDocumentSymbol    Kind = "document_symbol"
	KindFoldingRange      Kind = "folding_range"
	KindRename            Kind = "rename"
	KindCodeAction        Kind = "code_action"
	KindDocumentHighlight Kind = "document_highlight"
	KindReferences        Kind = "references"
)

// Notification kinds. Notifications never produce a response.
const (
	KindDidOpen                Kind = "did_open"
	KindDidChange              Kind = "did_change"
	KindDidSave                Kind = "did_save"
	KindDidClose               Kind = "did_close"
	KindCursorEvent            Kind = "cursor_event"
	KindWorkspaceFoldersChange Kind = "workspace_folders_change"
	KindConfigChange           Kind = "config_change"
	KindWatchedFilesChange     Kind = "watched_files_change"
)

// RequestKinds lists every request kind in declaration order.
var RequestKinds = []Kind{
	KindCompletion,
	KindHover,
	KindSignatureHelp,
	KindDefinition,
	KindDocumentSymbol,
	KindFoldingRange,
	KindRename,
	KindCodeAction,
	KindDocumentHighlight,
	KindReferences,
}

// NotificationKinds lists every notification kind in declaration order.
var NotificationKinds = []Kind{
	KindDidOpen,
	KindDidChange,
	KindDidSave,
	KindDidClose,
	KindCursorEvent,
	KindWorkspaceFoldersChange,
	KindConfigChange,
	KindWatchedFilesChange,
}

// IsRequest reports whether k expects a response.
func (k Kind) IsRequest() bool {
	for _, r := range RequestKinds {
		if r == k {
			return true
		}
	}
	return false
}

// IsNotification reports whether k is fire-and-forget.
func (k Kind) IsNotification() bool {
	for _, n := range NotificationKinds {
		if n == k {
			return true
		}
	}
	return false
}

// String returns the stable kind name.
func (k Kind) String() string {
	return string(k)
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if k.IsRequest() || k.IsNotification() {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
