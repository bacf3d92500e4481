// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package asset

import (
	"os"
	"path/filepath"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// DeleteVersion implements spec.md §4.5.4: it refuses to delete a version
// any pin still targets, then removes the vNNNN/.vNNNN pair, unlinking only
// the pool files that no surviving version or sidecar still reaches.
//
// Reachability is computed BEFORE any unlinking, so an in-progress removal
// can never be mistaken for an orphan. The whole operation runs under the
// asset's destructive-operation lock (lock.go) so a concurrent Collapse or
// Scrub cannot observe a half-finished reachability sweep.
func (a *Asset) DeleteVersion(versionName string) error {
	return a.withDestructiveLock(func() error {
		return a.deleteVersionLocked(versionName)
	})
}

// deleteVersionLocked is DeleteVersion's body, callable by Collapse without
// re-acquiring the (non-reentrant) lock it already holds.
func (a *Asset) deleteVersionLocked(versionName string) error {
	if err := a.ensurePools(); err != nil {
		return err
	}

	versionDir := filepath.Join(a.dir, versionName)
	metaDir := filepath.Join(a.dir, a.metadataDirName(versionName))

	if _, err := os.Stat(versionDir); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindSourceMissing, err, "version %q", versionName)
	}
	if _, err := os.Stat(metaDir); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindSourceMissing, err, "metadata for %q", versionName)
	}

	pins, err := a.VersionPins(versionName)
	if err != nil {
		return err
	}
	if len(pins) > 0 {
		return squirrelerr.New(squirrelerr.KindPinOnVictim,
			"cannot delete %q: still pinned by %v", versionName, pins)
	}

	allVersions, err := a.listVersions()
	if err != nil {
		return err
	}

	keepData := make(map[string]bool)
	keepThumb := make(map[string]bool)
	for _, v := range allVersions {
		if v == versionName {
			continue
		}
		vdir, err := a.versionDir(v)
		if err != nil {
			return err
		}
		targets, err := vdir.RealTargets()
		if err != nil {
			return err
		}
		for _, t := range targets {
			keepData[t] = true
		}

		sc, err := a.sidecarDir(v)
		if err != nil {
			return err
		}
		thumbs, err := sc.ThumbnailDataFiles()
		if err != nil {
			return err
		}
		for _, t := range thumbs {
			keepThumb[t] = true
		}
		poster, err := sc.PosterFile()
		if err != nil {
			return err
		}
		if poster != "" {
			if real, err := filepath.EvalSymlinks(poster); err == nil {
				keepThumb[real] = true
			}
		}
	}

	victimDir, err := a.versionDir(versionName)
	if err != nil {
		return err
	}
	victimTargets, err := victimDir.RealTargets()
	if err != nil {
		return err
	}
	for _, t := range victimTargets {
		if !keepData[t] {
			if err := a.pool.Remove(t); err != nil {
				return err
			}
		}
	}

	victimSidecar, err := a.sidecarDir(versionName)
	if err != nil {
		return err
	}
	if err := victimSidecar.DeleteThumbnails(keepThumb); err != nil {
		return err
	}

	if err := os.RemoveAll(versionDir); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing %q", versionDir)
	}
	if err := os.RemoveAll(metaDir); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing %q", metaDir)
	}

	a.logger.Infof("deleted version %q of asset %q", versionName, a.name)
	return nil
}

// listVersions returns every vNNNN directory name currently in the asset,
// sorted ascending.
func (a *Asset) listVersions() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading asset directory %q", a.dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && versionPattern.MatchString(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
