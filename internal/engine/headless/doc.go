/*
Package headless is an in-process off-screen browser engine.

Each browser splits into two roles. The browser role answers to the
UI-affinity queue and reports to an engine.Client. The renderer role runs
on its own goroutine, owns one goja runtime per frame and exchanges
envelopes with the browser role over a pipe.

Pages are fetched over HTTP(S), from the local file scheme or as
about:blank. The document model covers queries, element creation and tree
edits; painting draws the visible body text into a BGRA frame.
*/
package headless
