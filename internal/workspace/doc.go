// Package workspace tracks the root folder each language works in and
// watches the workspace for file changes.
//
// The Resolver keeps root_path[language]. Unset languages fall back to the
// working directory, or the home directory when that is unavailable. A root
// change emits workspace_folders_change through the notification bus.
//
// The Watcher observes a root recursively with fsnotify, filters paths with
// doublestar globs and coalesces bursts into batches of provider.FileChange
// that the core forwards as watched_files_change.
package workspace
