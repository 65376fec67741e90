// Package source implements the browser source lifecycle.
//
// A Source owns at most one browser. Configuration changes, visibility and
// activity arrive from the host on any goroutine; every browser mutation is
// posted to the engine's UI-affinity queue. Browser creation is flagged by
// Update and performed on the next Tick. A creation task carries the
// generation it was queued under and is dropped if a later Update, hide or
// Destroy superseded it.
//
// Lock order: graphics context, registry, Source.mu, browser lock.
package source
