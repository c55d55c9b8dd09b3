package provider

import "github.com/aymanbagabas/go-udiff"

// Payload is the kind-specific request or notification body. Fields that do
// not apply to a kind are left at their zero value.
type Payload struct {
	// Path is the absolute file path the request is about.
	Path string `json:"path,omitempty"`
	// Language overrides the dispatch language for broadcasts.
	Language string `json:"language,omitempty"`
	// Version is the editor's buffer version.
	Version int `json:"version,omitempty"`

	// Line and Column are zero-based cursor coordinates. Column counts
	// UTF-16 code units, matching the language-server convention.
	Line   int `json:"line"`
	Column int `json:"column"`

	// EndLine and EndColumn close a range for code_action requests.
	EndLine   int `json:"end_line,omitempty"`
	EndColumn int `json:"end_column,omitempty"`

	// Prefix is the current word before the cursor, when the editor knows it.
	Prefix string `json:"prefix,omitempty"`

	// Text is the full buffer text (did_open, full-replacement did_change).
	Text string `json:"text,omitempty"`
	// Edits is a patch against the previous buffer text (did_change).
	Edits []udiff.Edit `json:"edits,omitempty"`

	// Condition is an optional editor-supplied filter string.
	Condition string `json:"condition,omitempty"`

	// NewName is the replacement identifier for rename.
	NewName string `json:"new_name,omitempty"`
	// IncludeDeclaration controls references results.
	IncludeDeclaration bool `json:"include_declaration,omitempty"`

	// Added and Removed carry workspace folder changes.
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`

	// Settings carries provider settings for config_change.
	Settings map[string]any `json:"settings,omitempty"`

	// Changes carries file events for watched_files_change.
	Changes []FileChange `json:"changes,omitempty"`
}

// HasPatch reports whether the payload carries a diff patch instead of a
// full text replacement.
func (p Payload) HasPatch() bool {
	return len(p.Edits) > 0
}

// FileChangeType classifies a watched file event.
type FileChangeType int

// File change types, numbered like the language-server protocol.
const (
	FileCreated FileChangeType = iota + 1
	FileChanged
	FileDeleted
)

// String returns the change type name.
func (t FileChangeType) String() string {
	switch t {
	case FileCreated:
		return "created"
	case FileChanged:
		return "changed"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange is a single watched file event.
type FileChange struct {
	Path string         `json:"path"`
	Type FileChangeType `json:"type"`
}
