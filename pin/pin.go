// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package pin implements the pin (spec.md §4.3): a named symlink at an
// asset's root pointing at one of its version directories.
package pin

import (
	"os"
	"path/filepath"

	"github.com/bvz2000/squirrel/internal/fsatomic"
	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// Reserved pin names, managed by asset.Publish rather than directly by
// external callers.
const (
	Current = "CURRENT"
	Latest  = "LATEST"
)

// metadataLinkName is the asset-root symlink asset.ReserveVersion retargets
// to point at the latest sidecar directory; it is not a caller-visible pin.
const metadataLinkName = ".metadata"

// Set atomically replaces (or creates) the pin named name under assetDir so
// it points at version (e.g. "v0007"). If name already exists and is not a
// symlink, Set refuses rather than clobbering a real file or directory.
func Set(assetDir, name, version string) error {
	linkPath := filepath.Join(assetDir, name)

	if info, err := os.Lstat(linkPath); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return squirrelerr.New(squirrelerr.KindPinOverwriteNonLink,
				"refusing to overwrite non-link %q with pin %q", linkPath, name)
		}
	} else if !os.IsNotExist(err) {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "stat %q", linkPath)
	}

	target := filepath.Join(".", version)
	if err := fsatomic.Symlink(target, linkPath); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "setting pin %q -> %q", name, version)
	}
	return nil
}

// Remove unlinks the pin named name. It refuses if name resolves to
// something other than a symlink.
func Remove(assetDir, name string) error {
	linkPath := filepath.Join(assetDir, name)

	info, err := os.Lstat(linkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "stat %q", linkPath)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return squirrelerr.New(squirrelerr.KindPinOverwriteNonLink,
			"refusing to remove non-link %q as a pin", linkPath)
	}
	if err := os.Remove(linkPath); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing pin %q", linkPath)
	}
	return nil
}

// Resolve reads the pin named name and returns the version name it points
// at (e.g. "v0007").
func Resolve(assetDir, name string) (string, error) {
	linkPath := filepath.Join(assetDir, name)

	target, err := os.Readlink(linkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", squirrelerr.New(squirrelerr.KindSourceMissing, "pin %q does not exist", linkPath)
		}
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "reading pin %q", linkPath)
	}
	return filepath.Base(target), nil
}

// List enumerates every pin at the asset root along with the version each
// one resolves to. Non-symlink entries and the reserved dot-directories
// (.data, .thumbnaildata, .metadata, .asset) are skipped.
func List(assetDir string) (map[string]string, error) {
	entries, err := os.ReadDir(assetDir)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading asset directory %q", assetDir)
	}

	pins := make(map[string]string)
	for _, e := range entries {
		if e.Type()&os.ModeSymlink == 0 {
			continue
		}
		name := e.Name()
		if name == metadataLinkName {
			continue
		}
		version, err := Resolve(assetDir, name)
		if err != nil {
			continue
		}
		pins[name] = version
	}
	return pins, nil
}
