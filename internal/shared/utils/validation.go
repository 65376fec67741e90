package utils

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Payload limits
const (
	MaxEventPayloadSize  = 64 * 1024 // 64KB - encoded event_data
	MaxEventPayloadDepth = 32
)

// String length limits
const (
	MaxEventNameLength  = 256
	MaxSourceNameLength = 256
)

// PayloadValidator bounds event payloads before they are handed to pages.
type PayloadValidator struct {
	maxSize  int
	maxDepth int
}

// NewPayloadValidator creates a validator with the given limits
func NewPayloadValidator(maxSize, maxDepth int) *PayloadValidator {
	return &PayloadValidator{maxSize: maxSize, maxDepth: maxDepth}
}

// DefaultPayloadValidator returns a validator with the event payload limits
func DefaultPayloadValidator() *PayloadValidator {
	return NewPayloadValidator(MaxEventPayloadSize, MaxEventPayloadDepth)
}

// ValidateSize checks if the encoded size is within limits
func (v *PayloadValidator) ValidateSize(encoded string) error {
	if len(encoded) > v.maxSize {
		return fmt.Errorf("payload size %d bytes exceeds maximum %d bytes", len(encoded), v.maxSize)
	}
	return nil
}

// Encode checks the depth of a decoded JSON value and re-encodes it. A nil
// value yields fallback unchecked.
func (v *PayloadValidator) Encode(data interface{}, fallback string) (string, error) {
	if data == nil {
		return fallback, nil
	}
	if err := ValidateJSONDepth(data, v.maxDepth); err != nil {
		return "", err
	}
	encoded, err := sonic.MarshalString(data)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	if err := v.ValidateSize(encoded); err != nil {
		return "", err
	}
	return encoded, nil
}

// ValidateJSONDepth checks if JSON nesting depth is within limits
func ValidateJSONDepth(data interface{}, maxDepth int) error {
	return checkDepth(data, 0, maxDepth)
}

func checkDepth(data interface{}, currentDepth int, maxDepth int) error {
	if currentDepth > maxDepth {
		return fmt.Errorf("JSON nesting depth %d exceeds maximum %d", currentDepth, maxDepth)
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, value := range v {
			if err := checkDepth(value, currentDepth+1, maxDepth); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.IndexFunc(value, unicode.IsControl) >= 0 {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateEventName validates a page event name
func ValidateEventName(name string) error {
	return ValidateString(name, "event_name", 1, MaxEventNameLength, true)
}

// ValidateSourceName validates a source display name
func ValidateSourceName(name string) error {
	return ValidateString(name, "name", 1, MaxSourceNameLength, true)
}
