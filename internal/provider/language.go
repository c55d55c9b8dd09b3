package provider

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".go":       "go",
	".rs":       "rust",
	".ts":       "typescript",
	".tsx":      "typescriptreact",
	".js":       "javascript",
	".jsx":      "javascriptreact",
	".mjs":      "javascript",
	".py":       "python",
	".pyi":      "python",
	".rb":       "ruby",
	".java":     "java",
	".c":        "c",
	".h":        "c",
	".cpp":      "cpp",
	".cc":       "cpp",
	".cxx":      "cpp",
	".hpp":      "cpp",
	".cs":       "csharp",
	".swift":    "swift",
	".kt":       "kotlin",
	".kts":      "kotlin",
	".scala":    "scala",
	".php":      "php",
	".lua":      "lua",
	".sh":       "shellscript",
	".bash":     "shellscript",
	".json":     "json",
	".yaml":     "yaml",
	".yml":      "yaml",
	".toml":     "toml",
	".xml":      "xml",
	".html":     "html",
	".htm":      "html",
	".css":      "css",
	".scss":     "scss",
	".md":       "markdown",
	".markdown": "markdown",
	".sql":      "sql",
	".ipynb":    "python",
	".zig":      "zig",
}

var languageByBase = map[string]string{
	"makefile":   "makefile",
	"dockerfile": "dockerfile",
	"go.mod":     "go.mod",
}

// DetectLanguage returns the language identifier for a file path, or
// "plaintext" when the extension is unknown.
func DetectLanguage(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if lang, ok := languageByBase[base]; ok {
		return lang
	}
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "plaintext"
}
