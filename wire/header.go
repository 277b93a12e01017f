// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"bufio"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// TimeFormat is the layout of HTTP date headers.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// dateLayouts are the formats accepted when parsing a date header.
var dateLayouts = []string{
	TimeFormat,
	time.RFC850,
	time.ANSIC,
}

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered, case-insensitive, multi-valued set of header fields.
// The zero value is empty and ready to use.
type Header struct {
	fields []Field
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the fields in arrival order.
func (h *Header) Fields() []Field {
	return append([]Field(nil), h.fields...)
}

// Add appends a field, keeping any existing values for name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces every value of name with value. The field keeps the position
// of its first occurrence.
func (h *Header) Set(name, value string) {
	i := h.index(name)
	if i < 0 {
		h.Add(name, value)
		return
	}
	h.fields[i] = Field{Name: name, Value: value}
	h.delFrom(name, i+1)
}

// Get returns the first value of name or the empty string.
func (h *Header) Get(name string) string {
	i := h.index(name)
	if i < 0 {
		return ""
	}
	return h.fields[i].Value
}

// Has reports whether at least one field called name exists.
func (h *Header) Has(name string) bool {
	return h.index(name) >= 0
}

// Values returns every value of name in arrival order.
func (h *Header) Values(name string) []string {
	var vs []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			vs = append(vs, f.Value)
		}
	}
	return vs
}

// Del removes every field called name.
func (h *Header) Del(name string) {
	h.delFrom(name, 0)
}

// HasToken reports whether any comma separated element of any name field
// equals token, ignoring case.
func (h *Header) HasToken(name, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(name), token)
}

// Int returns the first value of name as an integer. ok is false when the
// field is absent.
func (h *Header) Int(name string) (n int64, ok bool, err error) {
	v := h.Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, true, protocolError("malformed integer header "+name, err)
	}
	return n, true, nil
}

// Date returns the first value of name as a time. ok is false when the
// field is absent.
func (h *Header) Date(name string) (t time.Time, ok bool, err error) {
	v := h.Get(name)
	if v == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range dateLayouts {
		t, err = time.Parse(layout, v)
		if err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, true, protocolError("malformed date header "+name, err)
}

func (h *Header) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

func (h *Header) delFrom(name string, start int) {
	if start >= len(h.fields) {
		return
	}
	kept := h.fields[:start]
	for _, f := range h.fields[start:] {
		if strings.EqualFold(f.Name, name) {
			continue
		}
		kept = append(kept, f)
	}
	clear(h.fields[len(kept):])
	h.fields = kept
}

// writeTo serializes every valid field. Fields which would corrupt the
// framing are skipped and returned.
func (h *Header) writeTo(w *bufio.Writer) (skipped []Field) {
	for _, f := range h.fields {
		if !httpguts.ValidHeaderFieldName(f.Name) || !httpguts.ValidHeaderFieldValue(f.Value) {
			skipped = append(skipped, f)
			continue
		}
		w.WriteString(f.Name)
		w.WriteString(": ")
		w.WriteString(f.Value)
		w.WriteString("\r\n")
	}
	return skipped
}
