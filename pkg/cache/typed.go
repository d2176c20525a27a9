// Copyright 2026 QuizForge. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"encoding/json"
)

// GetAs is Get with a typed result. A value of the wrong type is a miss.
func GetAs[T any](c Cache, key string) (T, bool) {
	v, ok := c.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	return convert[T](v)
}

// GetStaleAs is GetStale with a typed result.
func GetStaleAs[T any](c Cache, key string) (T, bool) {
	v, ok := c.GetStale(key)
	if !ok {
		var zero T
		return zero, false
	}
	return convert[T](v)
}

// convert asserts v to T. Entries restored from a snapshot hold raw JSON
// until their first typed read, so json.RawMessage is decoded into T.
func convert[T any](v any) (T, bool) {
	switch data := v.(type) {
	case T:
		return data, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(data, &out); err != nil {
			return out, false
		}
		return out, true
	default:
		var zero T
		return zero, false
	}
}

// PeekAs is Peek with a typed result. Like Peek it leaves access metadata
// and counters untouched.
func PeekAs[T any](s *Store, key string) (T, bool) {
	e, ok := s.Peek(key)
	if !ok {
		var zero T
		return zero, false
	}
	return convert[T](e.Data)
}
