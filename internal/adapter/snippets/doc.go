// Package snippets is an in-process provider that completes snippet
// triggers. Snippets are read from a YAML file keyed by language and kept
// in one radix tree per language, so the word before the cursor selects
// every trigger it prefixes with a single walk.
//
// File format:
//
//	snippets:
//	  go:
//	    - prefix: iferr
//	      body: "if err != nil {\n\treturn ${1:err}\n}"
//	      description: return on error
//	  "*":
//	    - prefix: todo
//	      body: "TODO: $0"
//
// Snippets under "*" are offered for every language.
package snippets
