// Package config is the kernel command-line store. Grounded on
// original_source/kernel/include/core/Config.h's
// InitConfigStore/GetConfig/GetConfigNumber: parsed once at boot from the
// single command-line string the bootloader hands over (arch.LoadState.
// CommandLine) into an immutable key->value map.
package config

import (
	"strconv"
	"strings"
)

// Store is the immutable parsed command line. The zero value is an empty
// store (every Get misses), useful as a test default.
type Store struct {
	values map[string]string
}

// Parse splits cmdline on whitespace into tokens of the form "key=value"
// or a bare "flag" (stored with an empty value), building the store once
// at boot. A key repeated across multiple tokens keeps its last value,
// the same last-wins rule a shell's argument parsing gives for repeated
// flags.
func Parse(cmdline string) *Store {
	s := &Store{values: make(map[string]string)}
	for _, tok := range strings.Fields(cmdline) {
		key, value, _ := strings.Cut(tok, "=")
		if key == "" {
			continue
		}
		s.values[key] = value
	}
	return s
}

// Get returns key's value and whether it was present at all.
func (s *Store) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// GetNumber parses key's value as a base-10 (or 0x-prefixed hex) integer,
// returning orDefault if the key is absent or does not parse.
func (s *Store) GetNumber(key string, orDefault int64) int64 {
	v, ok := s.Get(key)
	if !ok {
		return orDefault
	}
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return orDefault
	}
	return n
}
