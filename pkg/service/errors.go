package service

import (
	"fmt"
	"strings"
)

// UnsupportedServiceError is returned when the layer is neither a feature
// layer nor a table.
type UnsupportedServiceError struct {
	URL  string
	Type string
}

// Error implements the error interface.
func (e *UnsupportedServiceError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("unsupported service at %s: no layer type declared", e.URL)
	}
	return fmt.Sprintf("unsupported service at %s: type %q is not a feature layer or table", e.URL, e.Type)
}

// MissingIdentifierFieldError is returned by windowed operations on a layer
// that does not expose exactly one object-identifier field.
type MissingIdentifierFieldError struct {
	Candidates []string
}

// Error implements the error interface.
func (e *MissingIdentifierFieldError) Error() string {
	if len(e.Candidates) == 0 {
		return "layer has no object identifier field"
	}
	return fmt.Sprintf("layer has %d object identifier fields (%s), need exactly one",
		len(e.Candidates), strings.Join(e.Candidates, ", "))
}
