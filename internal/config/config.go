// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package config loads the ambient configuration the CLI needs to locate
// repositories and control populate behavior: the config file path, the
// cache path, the list of known repos, the default repo, and the skip-list
// regex patterns (spec.md §6).
package config

import (
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

// Environment variable names spec.md §6 lists as inputs to the surrounding
// layer.
const (
	EnvConfigPath  = "SQUIRREL_CONFIG"
	EnvCachePath   = "SQUIRREL_CACHE_PATH"
	EnvRepoList    = "SQUIRREL_REPO_LIST"
	EnvDefaultRepo = "SQUIRREL_DEFAULT_REPO"
)

// Config is the resolved set of values a CLI invocation runs with.
type Config struct {
	CachePath    string
	RepoList     []string
	DefaultRepo  string
	SkipPatterns []*regexp.Regexp
}

// Load reads configuration from, in order of increasing precedence: the
// config file (if one is found), and the SQUIRREL_* environment variables.
// cfgPath, if non-empty, overrides SQUIRREL_CONFIG and any default search
// path.
func Load(cfgPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SQUIRREL")
	v.AutomaticEnv()

	v.SetDefault("cache_path", "")
	v.SetDefault("repo_list", "")
	v.SetDefault("default_repo", "")
	v.SetDefault("skip_list_regex", []string{`^\.DS_Store$`, `^Thumbs\.db$`})

	if cfgPath == "" {
		cfgPath = v.GetString("config")
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading config file %q", cfgPath)
		}
	}

	var repoList []string
	if raw := v.GetString("repo_list"); raw != "" {
		for _, r := range strings.Split(raw, ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				repoList = append(repoList, r)
			}
		}
	} else {
		repoList = v.GetStringSlice("repo_list")
	}

	patterns, err := compilePatterns(v.GetStringSlice("skip_list_regex"))
	if err != nil {
		return nil, err
	}

	return &Config{
		CachePath:    v.GetString("cache_path"),
		RepoList:     repoList,
		DefaultRepo:  v.GetString("default_repo"),
		SkipPatterns: patterns,
	}, nil
}

func compilePatterns(raw []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "compiling skip pattern %q", p)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}
