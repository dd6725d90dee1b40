// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// parser holds the section state while reading a file.
type parser struct {
	exeName string
	active  bool
	cfg     *Config
}

// Parse reads a configuration file for the executable exeName.
//
// Lines that do not hold a section header or a valid assignment are
// skipped. Later assignments to the same key replace earlier ones. Only
// read errors are returned.
func Parse(r io.Reader, exeName string) (*Config, error) {
	p := &parser{exeName: exeName, active: true, cfg: New()}

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			p.parseLine(strings.TrimSuffix(line, "\n"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	return p.cfg, nil
}

func (p *parser) parseLine(line string) {
	n := skipWhitespace(line, 0)

	if n < len(line) && line[n] == '[' {
		p.active = sectionName(line[n+1:]) == p.exeName
		return
	}

	start := n
	for n < len(line) && isKeyChar(line[n]) {
		n++
	}
	key := line[start:n]
	if key == "" {
		return
	}

	n = skipWhitespace(line, n)
	if n >= len(line) || line[n] != '=' {
		return
	}
	n = skipWhitespace(line, n+1)

	var value strings.Builder
	quoted := false
	for ; n < len(line); n++ {
		c := line[n]
		if !quoted && isWhitespace(c) {
			break
		}
		if c == '"' {
			quoted = !quoted
			continue
		}
		value.WriteByte(c)
	}

	if p.active {
		p.cfg.SetOption(key, value.String())
	}
}

// sectionName returns the text of a section header up to its last ']'.
// A header without a closing bracket has an empty name.
func sectionName(s string) string {
	i := strings.LastIndexByte(s, ']')
	if i < 0 {
		return ""
	}
	return s[:i]
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

func isKeyChar(c byte) bool {
	return (c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		c == '.' || c == '_'
}

func skipWhitespace(s string, n int) int {
	for n < len(s) && isWhitespace(s[n]) {
		n++
	}
	return n
}
