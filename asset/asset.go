// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package asset implements the coordinator (spec.md §4.5): reservation,
// publish, delete-version, and collapse over a directory of vNNNN version
// directories, their .vNNNN sidecars, and the shared .data/.thumbnaildata
// content pools.
package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bvz2000/squirrel/internal/fsatomic"
	"github.com/bvz2000/squirrel/internal/logging"
	"github.com/bvz2000/squirrel/internal/squirrelerr"
	"github.com/bvz2000/squirrel/pin"
	"github.com/bvz2000/squirrel/pool"
	"github.com/bvz2000/squirrel/sidecar"
	"github.com/bvz2000/squirrel/version"
)

const (
	dataDirName          = ".data"
	thumbnailDataDirName = ".thumbnaildata"
	assetMarkerName      = ".asset"
	metadataLinkName     = ".metadata"
	maxVersion           = 9999
	maxReserveAttempts   = 100
)

var versionPattern = regexp.MustCompile(`^v([0-9]+)$`)

// Options configures an Asset.
type Options struct {
	// VerifyCopy asks the pool to confirm each copy byte-for-byte.
	VerifyCopy bool
	// Skip holds filename patterns excluded from populate (spec.md §4.2).
	Skip []*regexp.Regexp
	// Logger receives a custom logger; a stderr/error-level default is used
	// when nil.
	Logger log.Logger
}

// Asset coordinates one named, versioned thing stored under parentDir.
type Asset struct {
	name      string
	dir       string
	dataDir   string
	thumbDir  string
	opts      Options
	pool      *pool.Pool
	thumbPool *pool.Pool
	logger    *log.Helper
}

// Open wraps an asset named name living under parentDir (parentDir/name),
// creating neither the asset nor any version — use ReserveVersion/Publish
// for that. The content pools are opened lazily on first use since the
// asset directory may not exist yet.
func Open(parentDir, name string, opts *Options) (*Asset, error) {
	if name == "" {
		return nil, squirrelerr.New(squirrelerr.KindNameMissingTokens, "asset name must not be empty")
	}
	if opts == nil {
		opts = &Options{}
	}

	dir := filepath.Join(parentDir, name)
	a := &Asset{
		name:     name,
		dir:      dir,
		dataDir:  filepath.Join(dir, dataDirName),
		thumbDir: filepath.Join(dir, thumbnailDataDirName),
		opts:     *opts,
		logger:   logging.New(opts.Logger),
	}
	return a, nil
}

// Dir returns the asset's root directory.
func (a *Asset) Dir() string { return a.dir }

func (a *Asset) ensurePools() error {
	if a.pool == nil {
		p, err := pool.Open(a.dataDir, &pool.Options{Verify: a.opts.VerifyCopy, Logger: a.opts.Logger})
		if err != nil {
			return err
		}
		a.pool = p
	}
	if a.thumbPool == nil {
		p, err := pool.Open(a.thumbDir, &pool.Options{Verify: a.opts.VerifyCopy, Logger: a.opts.Logger})
		if err != nil {
			return err
		}
		a.thumbPool = p
	}
	return nil
}

func formatVersion(n int) string {
	return fmt.Sprintf("v%04d", n)
}

// HighestVersion returns the highest-numbered vNNNN entry currently in the
// asset directory, or "v0000" if the asset does not exist or has none
// (spec.md §4.5.1).
func (a *Asset) HighestVersion() (string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return formatVersion(0), nil
		}
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "reading asset directory %q", a.dir)
	}

	highest := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := versionPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	if highest > maxVersion {
		return "", squirrelerr.New(squirrelerr.KindVersionOverflow, "asset %q has more than %d versions", a.name, maxVersion)
	}
	return formatVersion(highest), nil
}

func (a *Asset) createAssetSkeleton() error {
	// A publisher that loses the create race still makes sure both pool
	// directories exist, since the winner may not have created them yet.
	if err := os.Mkdir(a.dir, 0o755); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating asset directory %q", a.dir)
		}
	} else if _, err := os.Create(filepath.Join(a.dir, assetMarkerName)); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating asset marker in %q", a.dir)
	}
	if err := os.Mkdir(a.dataDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating data dir %q", a.dataDir)
	}
	if err := os.Mkdir(a.thumbDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "creating thumbnail data dir %q", a.thumbDir)
	}
	return nil
}

// Reservation is the outcome of ReserveVersion: the newly allocated version
// directory and its paired metadata sidecar directory.
type Reservation struct {
	Version     string
	VersionDir  string
	MetadataDir string
}

// ReserveVersion allocates the next unused vNNNN for the asset, creating the
// asset directory first if necessary (spec.md §4.5.2). The reservation loop
// uses mkdir's atomic create-or-fail as the only lock primitive, so it is
// safe across arbitrarily many concurrent publishers.
func (a *Asset) ReserveVersion() (Reservation, error) {
	if err := a.createAssetSkeleton(); err != nil {
		return Reservation{}, err
	}
	if err := a.ensurePools(); err != nil {
		return Reservation{}, err
	}

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		highest, err := a.HighestVersion()
		if err != nil {
			return Reservation{}, err
		}
		m := versionPattern.FindStringSubmatch(highest)
		n, _ := strconv.Atoi(m[1])
		if n+1 > maxVersion {
			return Reservation{}, squirrelerr.New(squirrelerr.KindVersionOverflow,
				"asset %q has reached the maximum version v%04d", a.name, maxVersion)
		}
		candidate := formatVersion(n + 1)
		versionDir := filepath.Join(a.dir, candidate)

		if err := os.Mkdir(versionDir, 0o755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return Reservation{}, squirrelerr.Wrap(squirrelerr.KindIO, err, "reserving version directory %q", versionDir)
		}

		metaDir, err := a.createMetadataDir(candidate)
		if err != nil {
			return Reservation{}, err
		}

		a.logger.Debugf("reserved %q for asset %q", candidate, a.name)
		return Reservation{Version: candidate, VersionDir: versionDir, MetadataDir: metaDir}, nil
	}

	return Reservation{}, squirrelerr.New(squirrelerr.KindReservationExhausted,
		"could not reserve a version for asset %q after %d attempts", a.name, maxReserveAttempts)
}

func (a *Asset) metadataDirName(v string) string { return "." + v }

func (a *Asset) createMetadataDir(v string) (string, error) {
	metaDir := filepath.Join(a.dir, a.metadataDirName(v))
	if err := os.Mkdir(metaDir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "creating metadata dir %q", metaDir)
	}
	if err := os.Mkdir(filepath.Join(metaDir, "thumbnails"), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "creating thumbnails dir under %q", metaDir)
	}

	link := filepath.Join(a.dir, metadataLinkName)
	if info, err := os.Lstat(link); err == nil && info.Mode()&os.ModeSymlink == 0 {
		return "", squirrelerr.New(squirrelerr.KindPinOverwriteNonLink, "refusing to retarget %q: not a symlink", link)
	}
	if err := fsatomic.Symlink("./"+a.metadataDirName(v), link); err != nil {
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "retargeting %q", link)
	}
	return metaDir, nil
}

func (a *Asset) versionDir(v string) (*version.Dir, error) {
	return version.Open(filepath.Join(a.dir, v), a.pool, &version.Options{
		Skip:   a.opts.Skip,
		Logger: a.opts.Logger,
	})
}

func (a *Asset) sidecarDir(v string) (*sidecar.Sidecar, error) {
	return sidecar.Open(filepath.Join(a.dir, a.metadataDirName(v)), a.name, a.thumbPool, &sidecar.Options{Logger: a.opts.Logger})
}

// VersionPins returns every pin at the asset root that currently resolves
// to versionName.
func (a *Asset) VersionPins(versionName string) ([]string, error) {
	all, err := pin.List(a.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for name, target := range all {
		if target == versionName {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
