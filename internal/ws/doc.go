// Package ws serves vendor requests over WebSocket.
//
// A dock page or automation tool connects to /vendor and sends requests:
//
//	{"requestType": "emit_event", "requestId": "42",
//	 "requestData": {"event_name": "scoreChanged", "event_data": {"home": 3}}}
//
// emit_event broadcasts a page event to every source; event_data defaults
// to an empty object. Every request is answered with the same requestType
// and requestId (generated when absent) plus a requestStatus:
//
//	{"requestType": "emit_event", "requestId": "42",
//	 "requestStatus": {"result": true, "code": 100},
//	 "responseData": {"reached": 2}}
//
// ping answers with the server time.
package ws
