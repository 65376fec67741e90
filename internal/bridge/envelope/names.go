package envelope

// Messages pushed from the browser role to the renderer role.
const (
	NameVisibility      = "Visibility"
	NameActive          = "Active"
	NameDispatchJSEvent = "DispatchJSEvent"
	NameExecuteCallback = "executeCallback"
)

// Script-callable functions. An invocation message carries the function name.
const (
	FuncTestFunction  = "testFunction"
	FuncGetSourceInfo = "getSourceInfo"
)

// Functions is the default allowlist exposed to page script.
var Functions = []string{
	FuncTestFunction,
	FuncGetSourceInfo,
}

// IsFunction reports whether name is on the allowlist.
func IsFunction(name string) bool {
	for _, fn := range Functions {
		if fn == name {
			return true
		}
	}
	return false
}

// KnownToRenderer reports whether the renderer role understands name.
func KnownToRenderer(name string) bool {
	switch name {
	case NameVisibility, NameActive, NameDispatchJSEvent, NameExecuteCallback:
		return true
	}
	return false
}

// KnownToBrowser reports whether the browser role understands name.
func KnownToBrowser(name string) bool {
	return IsFunction(name)
}

// NewInvocation builds the host-bound message for a script call.
// Slot 0 always holds the callback id.
func NewInvocation(function string, callbackID int32) *Message {
	msg := New(function)
	msg.SetInt(0, callbackID)
	return msg
}

// NewExecuteCallback builds the reply resolving callbackID with jsonResult.
func NewExecuteCallback(callbackID int32, jsonResult string) *Message {
	return New(NameExecuteCallback, Int(callbackID), String(jsonResult))
}

// NewDispatchJSEvent builds a page event broadcast.
func NewDispatchJSEvent(eventName, jsonPayload string) *Message {
	return New(NameDispatchJSEvent, String(eventName), String(jsonPayload))
}

// NewVisibility builds a visibility push.
func NewVisibility(visible bool) *Message {
	return New(NameVisibility, Bool(visible))
}

// NewActive builds an activity push.
func NewActive(active bool) *Message {
	return New(NameActive, Bool(active))
}
