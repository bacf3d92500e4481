// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.SkipPatterns) == 0 {
		t.Fatalf("expected default skip patterns to be populated")
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "squirrel.yaml")
	content := "cache_path: /tmp/squirrel-cache\ndefault_repo: jobs\nrepo_list:\n  - jobs\n  - library\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CachePath != "/tmp/squirrel-cache" {
		t.Fatalf("unexpected cache path: %q", c.CachePath)
	}
	if c.DefaultRepo != "jobs" {
		t.Fatalf("unexpected default repo: %q", c.DefaultRepo)
	}
	if len(c.RepoList) != 2 {
		t.Fatalf("unexpected repo list: %v", c.RepoList)
	}
}
