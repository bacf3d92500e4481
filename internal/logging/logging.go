// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package logging centralizes the construction of the leveled logger every
// component in the store accepts through its Options. It generalizes the
// pattern the teacher package used for its own bundled log helper, but wires
// the real upstream Kratos logger instead of a look-alike.
package logging

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// New returns a *log.Helper wrapping custom, or a sensible default (errors
// only, to stderr) when custom is nil.
func New(custom log.Logger) *log.Helper {
	if custom != nil {
		return log.NewHelper(custom)
	}
	base := log.NewStdLogger(os.Stderr)
	filtered := log.NewFilter(base, log.FilterLevel(log.LevelError))
	return log.NewHelper(filtered)
}
