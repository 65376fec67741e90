package headless

// prelude defines the window event model of every frame.
const prelude = `
var window = this;
var self = this;
(function (g) {
	var listeners = {};
	g.addEventListener = function (type, fn) {
		if (typeof fn !== 'function') return;
		(listeners[type] = listeners[type] || []).push(fn);
	};
	g.removeEventListener = function (type, fn) {
		var list = listeners[type];
		if (!list) return;
		var i = list.indexOf(fn);
		if (i >= 0) list.splice(i, 1);
	};
	g.dispatchEvent = function (event) {
		var list = (listeners[event.type] || []).slice();
		for (var i = 0; i < list.length; i++) {
			try {
				list[i].call(g, event);
			} catch (err) {
				console.error('Uncaught ' + err);
			}
		}
		return !event.defaultPrevented;
	};
	g.Event = function (type, init) {
		this.type = String(type);
		this.bubbles = !!(init && init.bubbles);
		this.defaultPrevented = false;
	};
	g.Event.prototype.preventDefault = function () { this.defaultPrevented = true; };
	g.CustomEvent = function (type, init) {
		g.Event.call(this, type, init);
		this.detail = (init && ('detail' in init)) ? init.detail : null;
	};
	g.CustomEvent.prototype = Object.create(g.Event.prototype);
	g.CustomEvent.prototype.constructor = g.CustomEvent;
})(this);
`
