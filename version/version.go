// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package version implements the version directory (spec.md §4.2): a
// directory that holds nothing but symlinks into a pool, one version per
// publish, populated either from a source file/tree or carried forward from
// the previous version.
package version

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bvz2000/squirrel/internal/logging"
	"github.com/bvz2000/squirrel/internal/squirrelerr"
	"github.com/bvz2000/squirrel/pool"
)

// Options configures Populate/MergeFrom.
type Options struct {
	// Skip is a set of filename patterns that are excluded from Populate.
	// Each is matched anywhere in the base name (regexp.MatchString); a
	// pattern must carry its own ^/$ anchors to match from the start or
	// the whole name.
	Skip []*regexp.Regexp
	// Logger receives a custom logger; a stderr/error-level default is used
	// when nil.
	Logger log.Logger
}

// Dir wraps a single version directory on disk.
type Dir struct {
	path   string
	pool   *pool.Pool
	opts   Options
	logger *log.Helper
}

// Open wraps an existing version directory, created beforehand by whatever
// reserved its version number (asset.ReserveVersion).
func Open(path string, p *pool.Pool, opts *Options) (*Dir, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindDestinationUnusable, err, "version directory %q", path)
	}
	if !info.IsDir() {
		return nil, squirrelerr.New(squirrelerr.KindDestinationUnusable, "version path %q is not a directory", path)
	}
	if opts == nil {
		opts = &Options{}
	}
	return &Dir{path: path, pool: p, opts: *opts, logger: logging.New(opts.Logger)}, nil
}

// Path returns the version directory's path.
func (d *Dir) Path() string { return d.path }

func (d *Dir) skip(name string) bool {
	for _, re := range d.opts.Skip {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Populate copies srcPath (a file or a directory tree) into the version
// directory through the pool, preserving srcPath's directory structure and
// honoring the configured skip patterns (spec.md §4.2, "populate").
func (d *Dir) Populate(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return squirrelerr.Wrap(squirrelerr.KindSourceMissing, err, "source %q", srcPath)
	}

	if !info.IsDir() {
		name := filepath.Base(srcPath)
		if d.skip(name) {
			return nil
		}
		dest := filepath.Join(d.path, name)
		_, err := d.pool.Copy(srcPath, dest)
		return err
	}

	return filepath.Walk(srcPath, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcPath, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(d.path, rel)
		if fi.IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating %q", dest)
			}
			return nil
		}
		if d.skip(fi.Name()) {
			return nil
		}
		if _, err := d.pool.Copy(p, dest); err != nil {
			return err
		}
		return nil
	})
}

// MergeFrom carries forward, into this version, any file from prevVersion
// that this version does not already have at the same relative path
// (spec.md §4.2, "merge_from"). Symlinks are re-targeted at their resolved
// real path rather than copied, so the new version keeps pointing at the
// same pool file.
func (d *Dir) MergeFrom(prevVersion *Dir) ([]string, error) {
	var merged []string

	err := filepath.Walk(prevVersion.path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(prevVersion.path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(d.path, rel)
		if fi.IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating %q", dest)
			}
			return nil
		}
		if _, statErr := os.Lstat(dest); statErr == nil {
			return nil
		}

		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			return squirrelerr.Wrap(squirrelerr.KindIO, err, "resolving %q", p)
		}
		if err := os.Symlink(real, dest); err != nil {
			return squirrelerr.Wrap(squirrelerr.KindIO, err, "linking %q -> %q", dest, real)
		}
		merged = append(merged, dest)
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Debugf("merged %d files forward from %q into %q", len(merged), prevVersion.path, d.path)
	return merged, nil
}

// Files returns the relative paths of every file (not directory) this
// version directory currently contains.
func (d *Dir) Files() ([]string, error) {
	var files []string
	err := filepath.Walk(d.path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.path, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "walking version directory %q", d.path)
	}
	return files, nil
}

// RealTargets returns the resolved (non-symlink) path that each of this
// version's files ultimately points at in the pool — the set asset's
// reachability sweep needs before it can safely delete pool data.
func (d *Dir) RealTargets() ([]string, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(files))
	for _, rel := range files {
		real, err := filepath.EvalSymlinks(filepath.Join(d.path, rel))
		if err != nil {
			return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "resolving %q", rel)
		}
		targets = append(targets, real)
	}
	return targets, nil
}
