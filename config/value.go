// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import "math"

// Tristate is a boolean option that may be left to the implementation.
type Tristate int8

const (
	TristateAuto  Tristate = -1
	TristateFalse Tristate = 0
	TristateTrue  Tristate = 1
)

// String returns "auto", "false" or "true".
func (t Tristate) String() string {
	switch t {
	case TristateFalse:
		return "false"
	case TristateTrue:
		return "true"
	default:
		return "auto"
	}
}

// Resolve returns the boolean for t, using auto when t is TristateAuto.
func (t Tristate) Resolve(auto bool) bool {
	switch t {
	case TristateFalse:
		return false
	case TristateTrue:
		return true
	default:
		return auto
	}
}

// ParseBool parses "true" or "false", ignoring ASCII case.
func ParseBool(s string) (bool, bool) {
	switch toLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// ParseTristate parses "true", "false" or "auto", ignoring ASCII case.
func ParseTristate(s string) (Tristate, bool) {
	switch toLower(s) {
	case "true":
		return TristateTrue, true
	case "false":
		return TristateFalse, true
	case "auto":
		return TristateAuto, true
	default:
		return TristateAuto, false
	}
}

// ParseInt32 parses a decimal integer with an optional leading '-'.
// A leading '+', any other non-digit, an empty string and values outside
// the int32 range are rejected.
func ParseInt32(s string) (int32, bool) {
	digits := s
	neg := false
	if len(digits) > 0 && digits[0] == '-' {
		neg = true
		digits = digits[1:]
	}
	if digits == "" {
		return 0, false
	}

	var v int64
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
		if v > math.MaxInt32+1 {
			return 0, false
		}
	}
	if neg {
		v = -v
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, false
	}
	return int32(v), true
}

// toLower folds ASCII letters only; other bytes are kept as they are.
func toLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if b[j] >= 'A' && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
