// Package argstr decodes the packed "k1=v1:k2:k3=v3" argument blob SHMIF
// clients receive via ARCAN_ARG.
package argstr

import (
	"fmt"
	"strings"
)

// Pair is one decoded key[=value] entry, in input order. Value is nil for
// bare keys (no '=').
type Pair struct {
	Key   string
	Value *string
}

// Unpack decodes s into its ordered list of pairs. The tab character '\t'
// inside a field decodes to ':' -- the only escape the format defines. A
// second '=' within the same field before the next ':' is a syntax error
// and fails the whole parse, matching §4.9.
func Unpack(s string) ([]Pair, error) {
	if s == "" {
		return nil, nil
	}

	fields := strings.Split(s, ":")
	pairs := make([]Pair, 0, len(fields))

	for _, field := range fields {
		key, value, err := splitField(field)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: unescape(key), Value: value})
	}

	return pairs, nil
}

func splitField(field string) (key string, value *string, err error) {
	idx := -1
	for i := 0; i < len(field); i++ {
		if field[i] == '=' {
			if idx != -1 {
				return "", nil, fmt.Errorf("argstr: multiple '=' in field %q", field)
			}
			idx = i
		}
	}
	if idx == -1 {
		return field, nil, nil
	}
	v := unescape(field[idx+1:])
	return field[:idx], &v, nil
}

func unescape(s string) string {
	return strings.ReplaceAll(s, "\t", ":")
}

// escape is Unpack's inverse for a single field.
func escape(s string) string {
	return strings.ReplaceAll(s, ":", "\t")
}

// Repack is the canonical reserialization of pairs, inverse to Unpack on
// syntactically valid input (§8 round-trip property).
func Repack(pairs []Pair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		if p.Value == nil {
			parts[i] = escape(p.Key)
			continue
		}
		parts[i] = escape(p.Key) + "=" + escape(*p.Value)
	}
	return strings.Join(parts, ":")
}

// Lookup returns the value of the ind'th occurrence (0-based) of key among
// pairs. It mirrors the original's arg_lookup, supplemented from
// original_source because spec.md's distillation dropped it even though
// ARCAN_ARG consumers need indexed lookup for repeated keys.
func Lookup(pairs []Pair, key string, ind int) (string, bool) {
	for _, p := range pairs {
		if p.Key != key {
			continue
		}
		if ind == 0 {
			if p.Value == nil {
				return "", true
			}
			return *p.Value, true
		}
		ind--
	}
	return "", false
}

// Cleanup is a no-op retained for API symmetry with the original's explicit
// arg_cleanup(struct arg_arr*): Go's GC reclaims pairs on its own, but
// callers that mirror the original's parse/lookup/cleanup sequence have
// something to call at the end of it.
func Cleanup(pairs []Pair) {}
