// Package http provides the JSON API server and its handlers.
//
// This file implements decoding and validation of request bodies and query
// parameters shared by the handlers.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"teambudget/internal/core"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 64 << 10

var errMalformedBody = errors.New("malformed request body")

// DecodeJSON reads a single JSON object into dst. Unknown fields and
// trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after object", errMalformedBody)
	}
	return nil
}

// Amount accepts a JSON number or string in major units ("12.34", 12.34, "12,34").
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return core.ErrInvalidAmount
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(data)
	return nil
}

// Cents parses a strictly positive amount.
func (a Amount) Cents() (core.Money, error) {
	c, err := core.ParseDecimalToCents(string(a))
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: c}, nil
}

// Limit parses an amount where zero is allowed.
func (a Amount) Limit() (core.Money, error) {
	c, err := core.ParseLimitToCents(string(a))
	if err != nil {
		return core.Money{}, err
	}
	return core.Money{Cents: c}, nil
}

// ParseDateParam parses an optional YYYY-MM-DD query parameter. ok is false
// when the parameter is absent.
func ParseDateParam(r *http.Request, key string) (d core.Date, ok bool, err error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return core.Date{}, false, nil
	}
	d, err = core.ParseDate(v)
	if err != nil {
		return core.Date{}, false, err
	}
	return d, true, nil
}

// sanitizeInput removes control characters except tab, newline and carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
