package fallback

import (
	"github.com/dshills/codeintel/internal/provider"
)

// vocabulary is the fixed word list for a language, grouped by the
// completion kind each word is offered as.
type vocabulary map[string]provider.CompletionKind

func (v vocabulary) add(kind provider.CompletionKind, words ...string) vocabulary {
	for _, w := range words {
		if _, ok := v[w]; !ok {
			v[w] = kind
		}
	}
	return v
}

var vocabularies = map[string]vocabulary{
	"go":         goVocabulary(),
	"python":     pythonVocabulary(),
	"javascript": javaScriptVocabulary(),
	"typescript": javaScriptVocabulary().add(provider.CompletionClass,
		"number", "string", "boolean", "unknown", "never", "void", "any", "object"),
	"rust": rustVocabulary(),
}

// Vocabulary returns the built-in words for language.
func Vocabulary(language string) map[string]provider.CompletionKind {
	return vocabularies[language]
}

func goVocabulary() vocabulary {
	return vocabulary{}.
		add(provider.CompletionKeyword,
			"if", "else", "for", "range", "switch", "case", "default",
			"break", "continue", "return", "goto", "fallthrough", "select",
			"func", "var", "const", "type", "struct", "interface", "map", "chan",
			"package", "import", "defer", "go").
		add(provider.CompletionValue, "true", "false", "nil", "iota").
		add(provider.CompletionClass,
			"int", "int8", "int16", "int32", "int64",
			"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
			"float32", "float64", "complex64", "complex128",
			"bool", "byte", "rune", "string", "error", "any").
		add(provider.CompletionFunction,
			"make", "new", "len", "cap", "append", "copy", "delete",
			"close", "panic", "recover", "print", "println",
			"real", "imag", "complex", "min", "max", "clear")
}

func pythonVocabulary() vocabulary {
	return vocabulary{}.
		add(provider.CompletionKeyword,
			"if", "elif", "else", "for", "while", "break", "continue",
			"return", "try", "except", "finally", "raise", "with", "as",
			"match", "case", "def", "class", "lambda", "async", "await",
			"import", "from", "global", "nonlocal", "pass", "yield",
			"assert", "del", "in", "is", "not", "and", "or").
		add(provider.CompletionValue, "True", "False", "None").
		add(provider.CompletionClass,
			"int", "float", "str", "bool", "list", "dict", "set", "tuple",
			"bytes", "bytearray", "complex", "frozenset", "type", "object").
		add(provider.CompletionFunction,
			"print", "len", "range", "enumerate", "zip", "map", "filter",
			"open", "input", "isinstance", "issubclass", "hasattr", "getattr",
			"setattr", "delattr", "callable", "iter", "next", "sorted", "reversed",
			"sum", "min", "max", "abs", "round", "pow", "divmod", "all", "any",
			"format", "repr", "id", "hash", "dir", "vars", "locals",
			"globals", "super", "property", "staticmethod", "classmethod")
}

func javaScriptVocabulary() vocabulary {
	return vocabulary{}.
		add(provider.CompletionKeyword,
			"if", "else", "for", "while", "do", "switch", "case", "default",
			"break", "continue", "return", "throw", "try", "catch", "finally",
			"function", "var", "let", "const", "class", "extends", "async", "await",
			"type", "interface", "enum", "namespace", "module", "declare",
			"import", "export", "from", "as", "new", "delete",
			"typeof", "instanceof", "in", "of", "this", "super", "static",
			"get", "set", "yield", "debugger", "with",
			"public", "private", "protected", "readonly", "abstract", "override").
		add(provider.CompletionValue, "true", "false", "null", "undefined", "NaN", "Infinity")
}

func rustVocabulary() vocabulary {
	return vocabulary{}.
		add(provider.CompletionKeyword,
			"if", "else", "match", "for", "while", "loop", "break", "continue",
			"return", "yield", "fn", "let", "mut", "const", "static", "struct",
			"enum", "trait", "impl", "type", "mod", "macro_rules",
			"use", "crate", "super", "self", "Self", "pub", "where", "as",
			"async", "await", "dyn", "move", "ref", "unsafe", "extern").
		add(provider.CompletionValue, "true", "false", "None", "Some", "Ok", "Err").
		add(provider.CompletionClass,
			"i8", "i16", "i32", "i64", "i128", "isize",
			"u8", "u16", "u32", "u64", "u128", "usize",
			"f32", "f64", "bool", "char", "str", "String",
			"Vec", "Box", "Option", "Result").
		add(provider.CompletionFunction,
			"println", "print", "format", "panic", "assert", "debug_assert",
			"todo", "unimplemented", "unreachable")
}
