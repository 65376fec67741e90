// Package render is the browser-role side of the bridge.
//
// A Client receives the engine's paint, audio, load, console and process
// message callbacks for one browser and republishes them into the host:
// painted frames become textures through a Surface, audio packets are
// remapped to host speaker layouts, allowlisted script invocations are
// answered with executeCallback replies. Popups and context menus are
// always suppressed.
//
// The client refers to its source through a detachable reference and checks
// it before every callback, so callbacks arriving after the source started
// tearing down do nothing.
package render
