// Package script is the renderer-role side of the bridge.
//
// A Bridge installs one namespace object (window.irltk by default) into
// every script context and exposes the allowlisted functions on it. Calling
// one sends an invocation envelope to the browser role whose slot 0 carries
// the callback id, or 0 when the first argument is not callable. Replies
// arrive as executeCallback and resolve the pending callback exactly once.
//
// Visibility and Active pushes call the page's onVisibilityChange and
// onActiveChange slots in the main frame. DispatchJSEvent builds a
// CustomEvent and dispatches it in every frame.
package script
