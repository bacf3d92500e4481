// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package sidecar

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// thumbnailNamePattern matches "<stem>.<frame>.<ext>"; group 1 is the stem
// (must equal the asset name), group 2 the frame number.
var thumbnailNamePattern = regexp.MustCompile(`^(.+)\.([0-9]+)\.(.+)$`)

func (s *Sidecar) verifyThumbnailPaths(paths []string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return squirrelerr.Wrap(squirrelerr.KindSourceMissing, err, "thumbnail %q", p)
		}
		if info.IsDir() {
			return squirrelerr.New(squirrelerr.KindThumbnailNameInvalid, "thumbnail %q is a directory", p)
		}
	}
	return nil
}

// verifyThumbnailNames enforces "<assetName>.<frame>.<ext>" naming and a
// contiguous 1..N frame sequence (spec.md §4.4, add_thumbnails).
func (s *Sidecar) verifyThumbnailNames(paths []string) error {
	frames := make([]int, 0, len(paths))

	for _, p := range paths {
		name := filepath.Base(p)
		m := thumbnailNamePattern.FindStringSubmatch(name)
		if m == nil || m[1] != s.assetName {
			return squirrelerr.New(squirrelerr.KindThumbnailNameInvalid,
				"thumbnail %q does not match the required %q.<frame>.<ext> pattern", name, s.assetName)
		}
		frame, err := strconv.Atoi(m[2])
		if err != nil {
			return squirrelerr.New(squirrelerr.KindThumbnailNameInvalid, "thumbnail %q has an unparseable frame number", name)
		}
		frames = append(frames, frame)
	}

	sort.Ints(frames)
	for i, f := range frames {
		if f != i+1 {
			return squirrelerr.New(squirrelerr.KindThumbnailRangeNonContiguous,
				"thumbnail frame numbers must be contiguous starting at 1, got %v", frames)
		}
	}
	return nil
}

// SetPosterFrame copies posterPath into the thumbnail directory as
// "poster.<ext>", deduplicated through the shared thumbnail pool.
func (s *Sidecar) SetPosterFrame(posterPath string) error {
	if err := s.verifyThumbnailPaths([]string{posterPath}); err != nil {
		return err
	}
	ext := filepath.Ext(posterPath)
	dest := filepath.Join(s.thumbnailDir, posterStem+ext)
	_, err := s.thumbPool.Copy(posterPath, dest)
	return err
}

// AddThumbnails validates and copies thumbnailPaths into the thumbnail
// directory, deduplicated through the shared thumbnail pool, then promotes
// posterPath (or, if empty, frame 1) to the poster.
func (s *Sidecar) AddThumbnails(thumbnailPaths []string, posterPath string) error {
	if err := s.verifyThumbnailPaths(thumbnailPaths); err != nil {
		return err
	}
	if err := s.verifyThumbnailNames(thumbnailPaths); err != nil {
		return err
	}

	var framOne string
	for _, p := range thumbnailPaths {
		name := filepath.Base(p)
		m := thumbnailNamePattern.FindStringSubmatch(name)
		if frame, _ := strconv.Atoi(m[2]); frame == 1 {
			framOne = p
		}
		dest := filepath.Join(s.thumbnailDir, name)
		if _, err := s.thumbPool.Copy(p, dest); err != nil {
			return err
		}
	}

	if posterPath == "" {
		posterPath = framOne
	}
	if posterPath == "" {
		return nil
	}
	return s.SetPosterFrame(posterPath)
}

// DeletePoster removes the poster file, if any.
func (s *Sidecar) DeletePoster() error {
	entries, err := os.ReadDir(s.thumbnailDir)
	if err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "reading thumbnail directory %q", s.thumbnailDir)
	}
	for _, e := range entries {
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if strings.EqualFold(stem, posterStem) {
			if err := os.Remove(filepath.Join(s.thumbnailDir, e.Name())); err != nil {
				return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing poster %q", e.Name())
			}
		}
	}
	return nil
}

// DeleteThumbnails removes every thumbnail symlink (and, unless referenced
// elsewhere in keep, its pool data) along with the poster.
func (s *Sidecar) DeleteThumbnails(keep map[string]bool) error {
	links, err := s.ThumbnailSymlinkFiles()
	if err != nil {
		return err
	}

	for _, link := range links {
		real, err := filepath.EvalSymlinks(link)
		if err != nil {
			return squirrelerr.Wrap(squirrelerr.KindIO, err, "resolving thumbnail %q", link)
		}
		if err := os.Remove(link); err != nil {
			return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing thumbnail link %q", link)
		}
		if keep != nil && keep[real] {
			continue
		}
		if err := s.thumbPool.Remove(real); err != nil {
			return err
		}
	}

	return s.DeletePoster()
}

// ThumbnailSymlinkFiles returns the symlinks (not the underlying pool data)
// belonging to this sidecar's asset.
func (s *Sidecar) ThumbnailSymlinkFiles() ([]string, error) {
	entries, err := os.ReadDir(s.thumbnailDir)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading thumbnail directory %q", s.thumbnailDir)
	}

	var out []string
	for _, e := range entries {
		name := e.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		stem = strings.TrimSuffix(stem, filepath.Ext(stem))
		if stem != s.assetName {
			continue
		}
		full := filepath.Join(s.thumbnailDir, name)
		info, err := os.Lstat(full)
		if err != nil {
			return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "lstat %q", full)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			out = append(out, full)
		}
	}
	return out, nil
}

// ThumbnailDataFiles resolves every thumbnail symlink to its real pool path.
func (s *Sidecar) ThumbnailDataFiles() ([]string, error) {
	links, err := s.ThumbnailSymlinkFiles()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(links))
	for _, link := range links {
		real, err := filepath.EvalSymlinks(link)
		if err != nil {
			return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "resolving %q", link)
		}
		out = append(out, real)
	}
	return out, nil
}

// PosterFile returns the path to the poster symlink, or "" if none is set.
func (s *Sidecar) PosterFile() (string, error) {
	entries, err := os.ReadDir(s.thumbnailDir)
	if err != nil {
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "reading thumbnail directory %q", s.thumbnailDir)
	}
	for _, e := range entries {
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if strings.EqualFold(stem, posterStem) {
			return filepath.Join(s.thumbnailDir, e.Name()), nil
		}
	}
	return "", nil
}
