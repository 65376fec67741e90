/*
Package envelope defines the messages exchanged between the browser role
(host side) and the renderer role (page side).

A message is a name plus an ordered list of typed scalars: string, int32,
bool and double. Empty slots are null. Structured data travels as JSON
strings and is parsed by the receiver.

Names form a closed set:

	Visibility(bool)                      browser -> renderer
	Active(bool)                          browser -> renderer
	DispatchJSEvent(name, json)           browser -> renderer
	executeCallback(callbackId, json)     browser -> renderer
	<function>(callbackId, args...)       renderer -> browser

A receiver that does not recognize a name reports it as not handled.
Missing trailing arguments read as zero values.
*/
package envelope
