// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"sort"
	"strings"
)

// Wildcard is the rendered value of an unset key field.
const Wildcard = "*"

// Key builds deterministic cache keys of the form
//
//	op|field=value|field=value
//
// with fields sorted by name and values trimmed and lower-cased. Unset fields
// render as "*", so a broad request ("any key stage") gets its own key,
// distinct from every narrow one.
type Key struct {
	op     string
	fields map[string]string
}

// NewKey starts a key for the named operation.
func NewKey(op string) Key {
	return Key{op: op, fields: map[string]string{}}
}

// With returns a copy of k with field set. An empty value means "any".
func (k Key) With(field, value string) Key {
	out := k.clone()
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		value = Wildcard
	}
	out.fields[field] = value
	return out
}

// Broaden returns a copy of k with the named fields set to "any".
func (k Key) Broaden(fields ...string) Key {
	out := k.clone()
	for _, f := range fields {
		out.fields[f] = Wildcard
	}
	return out
}

// Op returns the operation name.
func (k Key) Op() string {
	return k.op
}

// String renders the key.
func (k Key) String() string {
	names := make([]string, 0, len(k.fields))
	for name := range k.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(k.op)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(k.fields[name])
	}
	return b.String()
}

func (k Key) clone() Key {
	fields := make(map[string]string, len(k.fields)+1)
	for name, v := range k.fields {
		fields[name] = v
	}
	return Key{op: k.op, fields: fields}
}
