package model

import (
	"errors"
	"fmt"
)

// MalformedInputError reports an input dataset that cannot be interpreted.
// It is fatal for the city being processed.
type MalformedInputError struct {
	Dataset string
	Record  int // zero-based record index, -1 when not record specific
	Field   string
	Err     error
}

func (e *MalformedInputError) Error() string {
	msg := "malformed input"
	if e.Dataset != "" {
		msg += " in " + e.Dataset
	}
	if e.Record >= 0 {
		msg += fmt.Sprintf(" record %d", e.Record)
	}
	if e.Field != "" {
		msg += " field " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// NewMalformedInput builds a MalformedInputError.
func NewMalformedInput(dataset string, record int, field string, err error) *MalformedInputError {
	return &MalformedInputError{Dataset: dataset, Record: record, Field: field, Err: err}
}

// IsMalformedInput reports whether err (or any wrapped error) is a MalformedInputError.
func IsMalformedInput(err error) bool {
	var me *MalformedInputError
	return errors.As(err, &me)
}
