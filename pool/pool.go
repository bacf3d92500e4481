// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package pool implements the dedup copy engine (spec.md §4.1): given a
// source file and a content pool, it returns a pool path such that
// identical content is stored once, and creates a relative symlink at the
// requested destination pointing at that pool file.
package pool

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/bvz2000/squirrel/internal/logging"
	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// VersionPrefix and SuffixWidth are fixed by spec.md §6: pool file names are
// "<base>_sqvNNNN<ext>" with a 4-wide zero-padded collision suffix.
const (
	VersionPrefix = "sqv"
	SuffixWidth   = 4
)

// entry is one file already stored in the pool.
type entry struct {
	path string
	size int64
	sum  [sha256.Size]byte
}

// Options configures a Pool.
type Options struct {
	// Verify enables post-copy digest verification (spec.md §4.1, "verify
	// copy"). When true, Copy re-reads both the source and the pool file
	// after writing and fails with PoolCorruption on mismatch.
	Verify bool

	// Logger receives a custom logger; a stderr/error-level default is used
	// when nil.
	Logger log.Logger
}

// Pool is a content-addressed store rooted at a single directory. Pool
// builds its size index once from the directory's current contents and
// maintains it incrementally; the index is never persisted (spec.md §5).
type Pool struct {
	dir     string
	verify  bool
	logger  *log.Helper
	mu      sync.Mutex
	bySize  map[int64][]*entry
	byPath  map[string]*entry
}

// Open builds a Pool rooted at dir, indexing any files already present.
// dir must already exist.
func Open(dir string, opts *Options) (*Pool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "pool directory %q", dir)
	}
	if !info.IsDir() {
		return nil, squirrelerr.New(squirrelerr.KindDestinationUnusable, "pool path %q is not a directory", dir)
	}

	if opts == nil {
		opts = &Options{}
	}

	p := &Pool{
		dir:    dir,
		verify: opts.Verify,
		logger: logging.New(opts.Logger),
		bySize: make(map[int64][]*entry),
		byPath: make(map[string]*entry),
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading pool directory %q", dir)
	}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		full := filepath.Join(dir, de.Name())
		fi, err := de.Info()
		if err != nil {
			return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "stat pool entry %q", full)
		}
		e := &entry{path: full, size: fi.Size()}
		p.bySize[e.size] = append(p.bySize[e.size], e)
		p.byPath[full] = e
	}

	return p, nil
}

// CopyResult reports what Copy actually did.
type CopyResult struct {
	// PoolPath is the pool file backing the new symlink.
	PoolPath string
	// Deduplicated is true when an existing pool file was reused instead of
	// a new copy being made.
	Deduplicated bool
}

// Copy implements spec.md §4.1: it places src's content into the pool
// (reusing an existing pool file when the content already exists) and
// creates a symlink at destLinkPath pointing at the chosen pool file.
func (p *Pool) Copy(srcPath, destLinkPath string) (CopyResult, error) {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return CopyResult{}, squirrelerr.Wrap(squirrelerr.KindSourceMissing, err, "source %q", srcPath)
		}
		return CopyResult{}, squirrelerr.Wrap(squirrelerr.KindIO, err, "stat source %q", srcPath)
	}
	if srcInfo.IsDir() {
		return CopyResult{}, squirrelerr.New(squirrelerr.KindSourceMissing, "source %q is a directory", srcPath)
	}

	destDir := filepath.Dir(destLinkPath)
	if _, err := os.Stat(destDir); err != nil {
		return CopyResult{}, squirrelerr.Wrap(squirrelerr.KindDestinationUnusable, err, "destination parent %q", destDir)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, err := p.findDuplicate(srcPath, srcInfo.Size()); err != nil {
		return CopyResult{}, err
	} else if existing != nil {
		if err := p.link(existing.path, destLinkPath); err != nil {
			return CopyResult{}, err
		}
		p.logger.Debugf("deduplicated %q against existing pool file %q", srcPath, existing.path)
		return CopyResult{PoolPath: existing.path, Deduplicated: true}, nil
	}

	poolPath, err := p.store(srcPath, srcInfo.Size())
	if err != nil {
		return CopyResult{}, err
	}
	if err := p.link(poolPath, destLinkPath); err != nil {
		return CopyResult{}, err
	}

	if p.verify {
		if err := p.verifyCopy(srcPath, poolPath); err != nil {
			return CopyResult{}, err
		}
	}

	return CopyResult{PoolPath: poolPath}, nil
}

// findDuplicate looks for a pool file of the same size and identical
// content as srcPath. It hashes srcPath once, then compares against any
// same-size candidate's (lazily-computed, cached) digest, confirming a
// digest match with a byte-for-byte mmap compare before declaring a
// duplicate — belt and suspenders against a hash collision (spec.md §9).
func (p *Pool) findDuplicate(srcPath string, size int64) (*entry, error) {
	candidates := p.bySize[size]
	if len(candidates) == 0 {
		return nil, nil
	}

	srcSum, err := sha256File(srcPath)
	if err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "hashing source %q", srcPath)
	}

	for _, c := range candidates {
		if c.sum == ([sha256.Size]byte{}) {
			sum, err := sha256File(c.path)
			if err != nil {
				return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "hashing pool file %q", c.path)
			}
			c.sum = sum
		}
		if c.sum != srcSum {
			continue
		}
		identical, err := bytesIdentical(srcPath, c.path)
		if err != nil {
			return nil, err
		}
		if identical {
			return c, nil
		}
	}
	return nil, nil
}

// store copies srcPath's bytes into the pool under a name derived from
// srcPath's base name, with a monotonic "_sqvNNNN" collision suffix, and
// registers the new entry in the index.
func (p *Pool) store(srcPath string, size int64) (string, error) {
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var poolPath string
	for n := 1; ; n++ {
		name := fmtPoolName(stem, n, ext)
		candidate := filepath.Join(p.dir, name)
		if _, exists := p.byPath[candidate]; exists {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "checking pool name %q", candidate)
		}
		// Another publisher may claim the same name between the Stat and
		// the exclusive create; move on to the next suffix in that case.
		if err := copyFile(srcPath, candidate); err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "copying %q into pool", srcPath)
		}
		poolPath = candidate
		break
	}

	sum, err := sha256File(poolPath)
	if err != nil {
		return "", squirrelerr.Wrap(squirrelerr.KindIO, err, "hashing new pool file %q", poolPath)
	}

	e := &entry{path: poolPath, size: size, sum: sum}
	p.bySize[size] = append(p.bySize[size], e)
	p.byPath[poolPath] = e

	return poolPath, nil
}

// link creates a relative symlink at destLinkPath pointing at poolPath, so
// the asset remains relocatable (spec.md §4.1 step 5).
func (p *Pool) link(poolPath, destLinkPath string) error {
	rel, err := filepath.Rel(filepath.Dir(destLinkPath), poolPath)
	if err != nil {
		rel = poolPath
	}
	if err := os.Remove(destLinkPath); err != nil && !os.IsNotExist(err) {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing existing entry at %q", destLinkPath)
	}
	if err := os.Symlink(rel, destLinkPath); err != nil {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "linking %q -> %q", destLinkPath, rel)
	}
	return nil
}

func (p *Pool) verifyCopy(srcPath, poolPath string) error {
	identical, err := bytesIdentical(srcPath, poolPath)
	if err != nil {
		return err
	}
	if !identical {
		return squirrelerr.New(squirrelerr.KindPoolCorruption, "copy of %q to %q failed verification", srcPath, poolPath)
	}
	return nil
}

func fmtPoolName(stem string, n int, ext string) string {
	return fmt.Sprintf("%s_%s%0*d%s", stem, VersionPrefix, SuffixWidth, n, ext)
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	return dst.Close()
}

func sha256File(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// bytesIdentical performs the final, authoritative comparison between two
// files of known-equal size by memory-mapping both and comparing bytes
// directly — the same mmap technique the teacher package uses to read a
// whole file without a buffered copy.
func bytesIdentical(aPath, bPath string) (bool, error) {
	af, err := os.Open(aPath)
	if err != nil {
		return false, squirrelerr.Wrap(squirrelerr.KindIO, err, "opening %q", aPath)
	}
	defer af.Close()
	bf, err := os.Open(bPath)
	if err != nil {
		return false, squirrelerr.Wrap(squirrelerr.KindIO, err, "opening %q", bPath)
	}
	defer bf.Close()

	aInfo, err := af.Stat()
	if err != nil {
		return false, squirrelerr.Wrap(squirrelerr.KindIO, err, "stat %q", aPath)
	}
	if aInfo.Size() == 0 {
		bInfo, err := bf.Stat()
		if err != nil {
			return false, squirrelerr.Wrap(squirrelerr.KindIO, err, "stat %q", bPath)
		}
		return bInfo.Size() == 0, nil
	}

	aMap, err := mmap.Map(af, mmap.RDONLY, 0)
	if err != nil {
		return false, squirrelerr.Wrap(squirrelerr.KindIO, err, "mapping %q", aPath)
	}
	defer aMap.Unmap()

	bMap, err := mmap.Map(bf, mmap.RDONLY, 0)
	if err != nil {
		return false, squirrelerr.Wrap(squirrelerr.KindIO, err, "mapping %q", bPath)
	}
	defer bMap.Unmap()

	return bytes.Equal(aMap, bMap), nil
}

// Entries returns the pool's current file paths, sorted, for diagnostics.
func (p *Pool) Entries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.byPath))
	for path := range p.byPath {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Remove deletes a pool file and drops it from the index. Used by
// asset.DeleteVersion/Collapse once reachability has been computed.
func (p *Pool) Remove(poolPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byPath[poolPath]
	if !ok {
		return nil
	}
	if err := os.Remove(poolPath); err != nil && !os.IsNotExist(err) {
		return squirrelerr.Wrap(squirrelerr.KindIO, err, "removing pool file %q", poolPath)
	}
	delete(p.byPath, poolPath)
	list := p.bySize[e.size]
	for i, c := range list {
		if c == e {
			p.bySize[e.size] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

// Dir returns the pool's root directory.
func (p *Pool) Dir() string { return p.dir }
