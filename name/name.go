// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package name validates and decomposes asset names against a token
// schema (spec.md §4.5.6): an underscore-separated path of schema tokens,
// a freeform description, and a trailing 1-2 letter variant code.
package name

import (
	"strings"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// Schema is a tree of legal token paths. Each key is a token valid at that
// level; its value is the subtree of tokens legal after it. A node with no
// children is a leaf, meaning a consumed path ending there is complete.
type Schema map[string]Schema

// Parsed is the decomposition of a name that validated successfully.
type Parsed struct {
	// Tokens is the consumed leading token path, e.g. ["char", "hero"].
	Tokens []string
	// Description is the freeform middle portion.
	Description string
	// Variant is the trailing 1-2 uppercase-letter code.
	Variant string
}

func isUpperLetters(s string, maxLen int) bool {
	if len(s) < 1 || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Parse validates name against schema and, on success, returns its
// decomposition. See spec.md §4.5.6 for the exact grammar.
func Parse(raw string, schema Schema) (Parsed, error) {
	if raw == "" {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameMissingTokens, "name is empty")
	}
	if strings.Contains(raw, "__") {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameDoubledUnderscore, "name %q contains a doubled underscore", raw)
	}
	if strings.HasPrefix(raw, "_") {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameLeadingUnderscore, "name %q starts with an underscore", raw)
	}
	if strings.HasSuffix(raw, "_") {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameTrailingUnderscore, "name %q ends with an underscore", raw)
	}

	elements := strings.Split(raw, "_")
	if len(elements) < 2 {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameMissingVariant, "name %q has no variant element", raw)
	}

	variant := elements[len(elements)-1]
	if !isUpperLetters(variant, 2) {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameMissingVariant,
			"name %q's trailing element %q is not a 1-2 letter uppercase variant code", raw, variant)
	}
	rest := elements[:len(elements)-1]

	if len(rest) == 0 {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameMissingTokens, "name %q has no token path", raw)
	}

	node := schema
	var tokens []string
	i := 0
	for i < len(rest) {
		child, ok := node[rest[i]]
		if !ok {
			break
		}
		tokens = append(tokens, rest[i])
		node = child
		i++
	}

	if len(tokens) == 0 {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameMissingTokens, "name %q does not start with a valid schema token", raw)
	}
	if len(node) != 0 {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameIncompleteTokens,
			"name %q's token path %v does not reach a schema leaf", raw, tokens)
	}

	description := strings.Join(rest[i:], "_")
	description = strings.Trim(description, "_")
	if description == "" {
		return Parsed{}, squirrelerr.New(squirrelerr.KindNameMissingDescription, "name %q has no description between its tokens and variant", raw)
	}

	return Parsed{Tokens: tokens, Description: description, Variant: variant}, nil
}
