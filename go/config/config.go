// Package config loads JSON5 configuration files into tagged structs.
package config

import (
	"encoding/json"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/flynn/json5"
	"go.skia.org/culprit/go/skerr"
)

// Duration allows a duration to be supplied as a human readable string, e.g.
// "5m" or "1h30m".
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json5.Unmarshal(b, &s); err != nil {
		return skerr.Wrapf(err, "duration must be a string")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return skerr.Wrap(err)
	}
	d.Duration = parsed
	return nil
}

// LoadFromJSON5 decodes each file in paths, in order, into dst, so that later
// files override earlier ones. dst must be a pointer to a struct with "json"
// tags. An error is returned if any non-struct, non-bool field is its zero
// value *unless* it is tagged with `optional:"true"`.
func LoadFromJSON5(dst interface{}, paths ...string) error {
	// Elem() dereferences a pointer or panics.
	rType := reflect.TypeOf(dst).Elem()
	if rType.Kind() != reflect.Struct {
		return skerr.Fmt("Input must be a pointer to a struct, got %T", dst)
	}
	for _, p := range paths {
		if err := decodeFile(dst, p); err != nil {
			return skerr.Wrapf(err, "reading config at %s", p)
		}
	}
	return checkRequired(reflect.Indirect(reflect.ValueOf(dst)))
}

// DecodeJSON5 decodes a single JSON5 document into dst without the required
// field check.
func DecodeJSON5(r io.Reader, dst interface{}) error {
	return skerr.Wrap(json5.NewDecoder(r).Decode(dst))
}

func decodeFile(dst interface{}, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return skerr.Wrap(err)
	}
	defer f.Close()
	return DecodeJSON5(f, dst)
}

// checkRequired returns an error if any non-struct, non-bool fields of the given value have a zero
// value *unless* they have an optional tag with value true.
func checkRequired(rValue reflect.Value) error {
	rType := rValue.Type()
	for i := 0; i < rValue.NumField(); i++ {
		field := rType.Field(i)
		if field.Type.Kind() == reflect.Struct {
			if field.Tag.Get("optional") == "true" {
				continue
			}
			if err := checkRequired(rValue.Field(i)); err != nil {
				return err
			}
			continue
		}
		if field.Type.Kind() == reflect.Bool {
			// Otherwise every bool would be required to be true.
			continue
		}
		if field.Tag.Get("json") == "" {
			continue
		}
		if field.Tag.Get("optional") == "true" {
			continue
		}
		if rValue.Field(i).IsZero() {
			return skerr.Fmt("Required %s to be non-zero", field.Name)
		}
	}
	return nil
}
