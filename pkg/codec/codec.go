// Package codec serializes engine values to JSON and parses them back with
// validation. Parse(Serialize(x)) == x for every value that passes Validate.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ErrInvalidPayload is returned when a payload cannot be decoded or fails validation.
var ErrInvalidPayload = errors.New("invalid payload")

// Validator is implemented by values that check their own invariants.
type Validator interface {
	Validate() error
}

// Serialize validates v and encodes it as JSON.
func Serialize[T Validator](v T) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("codec: serialize %T: %w", v, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: serialize %T: %w", v, err)
	}
	return data, nil
}

// Parse decodes a single JSON value into T and validates it.
// Unknown fields and trailing data are rejected.
func Parse[T Validator](data []byte) (T, error) {
	var v T
	if err := DecodeStrict(bytes.NewReader(data), &v); err != nil {
		return v, err
	}
	if err := v.Validate(); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %T: %w", ErrInvalidPayload, v, err)
	}
	return v, nil
}

// DecodeStrict decodes exactly one JSON value from r into v.
func DecodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", ErrInvalidPayload)
	}
	return nil
}

// Marshal encodes v as JSON without validation.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON into v without validation.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Encode writes v as a single JSON line to w.
func Encode(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
