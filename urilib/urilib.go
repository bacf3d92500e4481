// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package urilib parses the "<repo>:/<path>#<asset>" URIs the CLI and
// config layer use to address an asset without spelling out its absolute
// filesystem path.
package urilib

import (
	"regexp"
	"strings"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

var uriPattern = regexp.MustCompile(`.*:/.*#.*`)

// Valid reports whether uri matches the basic "repo:/path#asset" shape. It
// does not check that the repo, path, or asset actually exist.
func Valid(uri string) bool {
	return uriPattern.MatchString(uri)
}

// URI is a parsed "<repo>:/<path>#<asset>" reference.
type URI struct {
	Repo  string
	Path  string
	Asset string
}

// Parse splits a valid URI into its repo, path, and asset components.
func Parse(uri string) (URI, error) {
	if !Valid(uri) {
		return URI{}, squirrelerr.New(squirrelerr.KindSourceMissing, "malformed uri %q", uri)
	}

	repoAndRest := strings.SplitN(uri, ":/", 2)
	repo := repoAndRest[0]

	pathAndAsset := strings.SplitN(repoAndRest[1], "#", 2)

	return URI{
		Repo:  repo,
		Path:  pathAndAsset[0],
		Asset: pathAndAsset[1],
	}, nil
}
