// Package fallback is an in-process completion provider that needs no
// external tooling. It offers identifiers from the open buffers of the same
// language plus a built-in vocabulary of keywords and builtins, ranked by
// fuzzy match against the word before the cursor. It also answers
// document_highlight with the occurrences of the word under the cursor.
package fallback
