// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package asset

import (
	"os"
	"path/filepath"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// Scrub removes vNNNN/.vNNNN pairs left behind by a publish that failed
// partway through (spec.md §9 leaves recovery as an implementer's
// decision). A version is a scrub candidate in either of two cases: its
// .vNNNN sidecar is missing entirely (a crash before createMetadataDir ever
// ran), or the sidecar exists but Populate never resolved a single file into
// the pool for it (a crash between reservation and the first file landing —
// createMetadataDir creates the sidecar unconditionally as part of
// reservation, so "sidecar exists" alone can never signal a completed
// publish). Either way, the version is only ever removed if no pin
// references it — the same safety check DeleteVersion applies.
//
// Scrub returns the versions it removed.
func (a *Asset) Scrub() ([]string, error) {
	var scrubbed []string
	err := a.withDestructiveLock(func() error {
		if err := a.ensurePools(); err != nil {
			return err
		}

		versions, err := a.listVersions()
		if err != nil {
			return err
		}

		for _, v := range versions {
			incomplete, reason, err := a.isIncompletePublish(v)
			if err != nil {
				return err
			}
			if !incomplete {
				continue
			}

			pins, err := a.VersionPins(v)
			if err != nil {
				return err
			}
			if len(pins) > 0 {
				a.logger.Errorf("scrub: version %q looks incomplete (%s) but is pinned by %v, leaving in place", v, reason, pins)
				continue
			}

			versionDir := filepath.Join(a.dir, v)
			if err := os.RemoveAll(versionDir); err != nil {
				return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing %q", versionDir)
			}
			metaDir := filepath.Join(a.dir, a.metadataDirName(v))
			if err := os.RemoveAll(metaDir); err != nil {
				return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing %q", metaDir)
			}
			scrubbed = append(scrubbed, v)
			a.logger.Infof("scrubbed incomplete publish %q from asset %q (%s)", v, a.name, reason)
		}

		return nil
	})
	return scrubbed, err
}

// isIncompletePublish reports whether v looks like a publish that never
// finished, and why.
func (a *Asset) isIncompletePublish(v string) (bool, string, error) {
	metaDir := filepath.Join(a.dir, a.metadataDirName(v))
	if _, err := os.Stat(metaDir); err != nil {
		if os.IsNotExist(err) {
			return true, "missing sidecar", nil
		}
		return false, "", squirrelerr.Wrap(squirrelerr.KindIO, err, "stat %q", metaDir)
	}

	vdir, err := a.versionDir(v)
	if err != nil {
		return false, "", err
	}
	files, err := vdir.Files()
	if err != nil {
		return false, "", err
	}
	if len(files) > 0 {
		return false, "", nil
	}

	sc, err := a.sidecarDir(v)
	if err != nil {
		return false, "", err
	}
	thumbs, err := sc.ThumbnailDataFiles()
	if err != nil {
		return false, "", err
	}
	if len(thumbs) > 0 {
		return false, "", nil
	}

	return true, "sidecar exists but no content or thumbnail files ever resolved into the pool", nil
}
