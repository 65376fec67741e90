package render

import (
	"github.com/GriffinCanCode/browser-source/internal/bridge/envelope"
)

// SourceInfo describes the source a page is rendered into.
type SourceInfo struct {
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Visible bool   `json:"visible"`
	Active  bool   `json:"active"`
	URL     string `json:"url"`
}

// Function answers a script invocation. The returned value is encoded as the
// JSON result of executeCallback.
type Function func(info SourceInfo, msg *envelope.Message) (interface{}, error)

type testReply struct {
	Test string `json:"test"`
	R    string `json:"r"`
}

// DefaultFunctions returns the handlers for the default allowlist.
func DefaultFunctions() map[string]Function {
	return map[string]Function{
		envelope.FuncTestFunction: func(_ SourceInfo, msg *envelope.Message) (interface{}, error) {
			return testReply{Test: "object", R: msg.Name}, nil
		},
		envelope.FuncGetSourceInfo: func(info SourceInfo, _ *envelope.Message) (interface{}, error) {
			return info, nil
		},
	}
}
