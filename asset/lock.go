// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package asset

import (
	"os"
	"path/filepath"

	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

const lockFileName = ".squirrel.lock"

// withDestructiveLock serializes DeleteVersion/Collapse/Scrub across
// processes on the same asset with an advisory lock file, so two operators
// cannot compute reachability against each other's half-finished deletion.
// Reservation and Publish need no such lock (mkdir's atomic create-or-fail
// already makes them safe, spec.md §5); this guards the operations that
// unlink pool data, where an interleaved reachability computation could
// otherwise race.
func (a *Asset) withDestructiveLock(fn func() error) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating asset directory %q", a.dir)
	}

	lockPath := filepath.Join(a.dir, lockFileName)
	unlock, err := lockedfile.MutexAt(lockPath).Lock()
	if err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "acquiring lock %q", lockPath)
	}
	defer unlock()

	return fn()
}
