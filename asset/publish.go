// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package asset

import (
	"github.com/bvz2000/squirrel/internal/squirrelerr"
	"github.com/bvz2000/squirrel/pin"
)

// PublishInput describes one publish call (spec.md §4.5.3).
type PublishInput struct {
	// Source is the file or directory to publish.
	Source string
	// Merge carries forward any files from the previous version not
	// explicitly provided in this publish. Nil defaults to true, matching
	// spec.md §4.5.3; pass a pointer to false to publish an exact snapshot.
	Merge *bool
	// KeyValues is arbitrary metadata, upserted into the new version's
	// sidecar.
	KeyValues map[string]string
	// Keywords is appended to the new version's sidecar.
	Keywords []string
	// Notes, if non-empty, overwrites the new version's notes.
	Notes string
	// Thumbnails are validated, deduplicated, and stored with the new
	// version.
	Thumbnails []string
	// PosterFrame, if set, picks which thumbnail becomes the poster;
	// otherwise frame 1 is used.
	PosterFrame string
	// ExtraPins are set to the new version in addition to CURRENT/LATEST.
	// Setting CURRENT or LATEST explicitly here is rejected.
	ExtraPins []string
}

// PublishResult reports the outcome of a successful publish.
type PublishResult struct {
	Version string
	Merged  []string
}

// Publish implements spec.md §4.5.3: reserve a version, populate it from
// Source, write sidecar metadata, optionally merge forward from the
// previous version, then set CURRENT/LATEST and any extra pins.
//
// A failure after reservation leaves the partial version in place;
// recovery is Scrub's job, not Publish's (spec.md §9).
func (a *Asset) Publish(in PublishInput) (PublishResult, error) {
	for _, p := range in.ExtraPins {
		if p == pin.Current || p == pin.Latest {
			return PublishResult{}, squirrelerr.New(squirrelerr.KindPinOnVictim, "pin %q is reserved and managed by Publish", p)
		}
	}

	prevVersion, err := a.HighestVersion()
	if err != nil {
		return PublishResult{}, err
	}
	hadPrevious := prevVersion != formatVersion(0)

	res, err := a.ReserveVersion()
	if err != nil {
		return PublishResult{}, err
	}

	vdir, err := a.versionDir(res.Version)
	if err != nil {
		return PublishResult{}, err
	}
	if err := vdir.Populate(in.Source); err != nil {
		return PublishResult{}, err
	}

	sc, err := a.sidecarDir(res.Version)
	if err != nil {
		return PublishResult{}, err
	}
	if len(in.KeyValues) > 0 {
		if err := sc.AddKeyValues(in.KeyValues); err != nil {
			return PublishResult{}, err
		}
	}
	if len(in.Keywords) > 0 {
		if err := sc.AddKeywords(in.Keywords); err != nil {
			return PublishResult{}, err
		}
	}
	if in.Notes != "" {
		if err := sc.WriteNotes(in.Notes, true); err != nil {
			return PublishResult{}, err
		}
	}
	if len(in.Thumbnails) > 0 {
		if err := sc.AddThumbnails(in.Thumbnails, in.PosterFrame); err != nil {
			return PublishResult{}, err
		}
	}

	merge := in.Merge == nil || *in.Merge

	var merged []string
	if merge && hadPrevious {
		prevDir, err := a.versionDir(prevVersion)
		if err != nil {
			return PublishResult{}, err
		}
		merged, err = vdir.MergeFrom(prevDir)
		if err != nil {
			return PublishResult{}, err
		}
	}

	if err := pin.Set(a.dir, pin.Current, res.Version); err != nil {
		return PublishResult{}, err
	}
	if err := pin.Set(a.dir, pin.Latest, res.Version); err != nil {
		return PublishResult{}, err
	}
	for _, name := range in.ExtraPins {
		if err := pin.Set(a.dir, name, res.Version); err != nil {
			return PublishResult{}, err
		}
	}

	a.logger.Infof("published %q as %q (merged %d carried-forward files)", a.name, res.Version, len(merged))
	return PublishResult{Version: res.Version, Merged: merged}, nil
}
