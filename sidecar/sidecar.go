// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package sidecar implements the metadata sidecar (spec.md §4.4): the
// keywords, key/value pairs, freeform notes, and thumbnails attached to a
// single version of an asset.
package sidecar

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bvz2000/squirrel/internal/fsatomic"
	"github.com/bvz2000/squirrel/internal/logging"
	"github.com/bvz2000/squirrel/internal/squirrelerr"
	"github.com/bvz2000/squirrel/pool"
)

// File names used inside a .vNNNN sidecar directory.
const (
	keywordsFile  = "keywords"
	keyvaluesFile = "keyvalues"
	notesFile     = "notes"
	thumbnailsDir = "thumbnails"
	posterStem    = "poster"
)

// Sidecar wraps a single version's `.vNNNN` metadata directory.
type Sidecar struct {
	dir          string
	thumbnailDir string
	thumbPool    *pool.Pool
	assetName    string
	logger       *log.Helper
}

// Options configures a Sidecar.
type Options struct {
	// Logger receives a custom logger; a stderr/error-level default is used
	// when nil.
	Logger log.Logger
}

// Open wraps an existing `.vNNNN` sidecar directory. assetName is used to
// validate thumbnail file names; thumbPool is the asset's shared thumbnail
// content pool (".thumbnaildata").
func Open(dir, assetName string, thumbPool *pool.Pool, opts *Options) (*Sidecar, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindDestinationUnusable, err, "sidecar directory %q", dir)
	}
	if !info.IsDir() {
		return nil, squirrelerr.New(squirrelerr.KindDestinationUnusable, "sidecar path %q is not a directory", dir)
	}
	if opts == nil {
		opts = &Options{}
	}

	thumbDir := filepath.Join(dir, thumbnailsDir)
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "creating thumbnail dir %q", thumbDir)
	}

	return &Sidecar{
		dir:          dir,
		thumbnailDir: thumbDir,
		thumbPool:    thumbPool,
		assetName:    assetName,
		logger:       logging.New(opts.Logger),
	}, nil
}

func (s *Sidecar) path(name string) string { return filepath.Join(s.dir, name) }

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading %q", path)
	}
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func writeLines(path string, lines []string) error {
	return fsatomic.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

// AddKeywords uppercases each keyword, deduplicates case-insensitively
// against what is already on file, and appends the new ones.
func (s *Sidecar) AddKeywords(words []string) error {
	existing, err := readLines(s.path(keywordsFile))
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing))
	for _, w := range existing {
		seen[strings.ToUpper(w)] = true
	}

	for _, w := range words {
		up := strings.ToUpper(strings.TrimSpace(w))
		if up == "" || seen[up] {
			continue
		}
		seen[up] = true
		existing = append(existing, up)
	}

	return writeLines(s.path(keywordsFile), existing)
}

// RemoveKeywords drops the named keywords (case-insensitive match).
func (s *Sidecar) RemoveKeywords(words []string) error {
	existing, err := readLines(s.path(keywordsFile))
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(words))
	for _, w := range words {
		drop[strings.ToUpper(strings.TrimSpace(w))] = true
	}

	kept := existing[:0]
	for _, w := range existing {
		if !drop[strings.ToUpper(w)] {
			kept = append(kept, w)
		}
	}
	return writeLines(s.path(keywordsFile), kept)
}

// ListKeywords returns every keyword currently on file.
func (s *Sidecar) ListKeywords() ([]string, error) {
	return readLines(s.path(keywordsFile))
}

// AddKeyValues upserts the given key/value pairs, uppercasing keys.
func (s *Sidecar) AddKeyValues(pairs map[string]string) error {
	existing, err := s.GetKeyValues()
	if err != nil {
		return err
	}
	for k, v := range pairs {
		existing[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return s.writeKeyValues(existing)
}

// RemoveKeyValues deletes the named keys (case-insensitive).
func (s *Sidecar) RemoveKeyValues(keys []string) error {
	existing, err := s.GetKeyValues()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(existing, strings.ToUpper(strings.TrimSpace(k)))
	}
	return s.writeKeyValues(existing)
}

// GetKeyValues returns every key/value pair currently on file.
func (s *Sidecar) GetKeyValues() (map[string]string, error) {
	lines, err := readLines(s.path(keyvaluesFile))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(lines))
	for _, l := range lines {
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func (s *Sidecar) writeKeyValues(pairs map[string]string) error {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+pairs[k])
	}
	return writeLines(s.path(keyvaluesFile), lines)
}

// WriteNotes overwrites or appends text to the notes file.
func (s *Sidecar) WriteNotes(text string, overwrite bool) error {
	if overwrite {
		return fsatomic.WriteFile(s.path(notesFile), []byte(text), 0o644)
	}
	existing, err := os.ReadFile(s.path(notesFile))
	if err != nil && !os.IsNotExist(err) {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "reading %q", s.path(notesFile))
	}
	combined := append(append([]byte{}, existing...), []byte(text)...)
	return fsatomic.WriteFile(s.path(notesFile), combined, 0o644)
}

// Notes returns the current freeform notes text.
func (s *Sidecar) Notes() (string, error) {
	data, err := os.ReadFile(s.path(notesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "reading %q", s.path(notesFile))
	}
	return string(data), nil
}
