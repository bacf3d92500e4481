// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package version

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/bvz2000/squirrel/pool"
)

func mustPool(t *testing.T) *pool.Pool {
	t.Helper()
	p, err := pool.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("pool.Open: %v", err)
	}
	return p
}

func mustDir(t *testing.T, p *pool.Pool, opts *Options) *Dir {
	t.Helper()
	path := t.TempDir()
	d, err := Open(path, p, opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestPopulateSingleFile(t *testing.T) {
	p := mustPool(t)
	d := mustDir(t, p, nil)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "render.exr")
	if err := os.WriteFile(src, []byte("frame data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := d.Populate(src); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	files, err := d.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 || files[0] != "render.exr" {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestPopulateDirectoryTreeAndSkip(t *testing.T) {
	p := mustPool(t)
	skip := []*regexp.Regexp{regexp.MustCompile(`^\.DS_Store$`)}
	d := mustDir(t, p, &Options{Skip: skip})

	srcDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("b"), 0o644)
	os.WriteFile(filepath.Join(srcDir, ".DS_Store"), []byte("junk"), 0o644)

	if err := d.Populate(srcDir); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	files, err := d.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files (skip applied), got %v", files)
	}
}

func TestMergeFromCarriesForwardMissingFiles(t *testing.T) {
	p := mustPool(t)
	prev := mustDir(t, p, nil)
	curr := mustDir(t, p, nil)

	srcDir := t.TempDir()
	keep := filepath.Join(srcDir, "unchanged.txt")
	changed := filepath.Join(srcDir, "changed.txt")
	os.WriteFile(keep, []byte("same forever"), 0o644)
	os.WriteFile(changed, []byte("v1"), 0o644)

	if err := prev.Populate(keep); err != nil {
		t.Fatalf("prev.Populate keep: %v", err)
	}
	if err := prev.Populate(changed); err != nil {
		t.Fatalf("prev.Populate changed: %v", err)
	}

	os.WriteFile(changed, []byte("v2"), 0o644)
	if err := curr.Populate(changed); err != nil {
		t.Fatalf("curr.Populate changed: %v", err)
	}

	merged, err := curr.MergeFrom(prev)
	if err != nil {
		t.Fatalf("MergeFrom: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("expected exactly one merged file, got %v", merged)
	}

	files, err := curr.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected current version to have both files after merge, got %v", files)
	}

	got, err := os.ReadFile(filepath.Join(curr.Path(), "changed.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("merge must not overwrite the file already present in the current version, got %q", got)
	}
}

func TestRealTargetsResolvesPoolFiles(t *testing.T) {
	p := mustPool(t)
	d := mustDir(t, p, nil)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "thing.bin")
	os.WriteFile(src, []byte("data"), 0o644)

	if err := d.Populate(src); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	targets, err := d.RealTargets()
	if err != nil {
		t.Fatalf("RealTargets: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("expected one resolved target, got %v", targets)
	}
	if filepath.Dir(targets[0]) != p.Dir() {
		t.Fatalf("expected target to resolve into the pool dir %q, got %q", p.Dir(), targets[0])
	}
}
