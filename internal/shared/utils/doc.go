// Package utils validates externally supplied event names, source names and
// event payloads.
package utils
