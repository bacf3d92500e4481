// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bvz2000/squirrel/asset"
	"github.com/bvz2000/squirrel/internal/config"
)

func newPublishCmd() *cobra.Command {
	var (
		parentDir  string
		source     string
		keywords   string
		notes      string
		extraPins  string
		noMerge    bool
		verifyCopy bool
	)

	cmd := &cobra.Command{
		Use:   "publish <asset-name>",
		Short: "Publish a file or directory as a new version of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			a, err := asset.Open(parentDir, args[0], &asset.Options{
				VerifyCopy: verifyCopy,
				Skip:       cfg.SkipPatterns,
			})
			if err != nil {
				return err
			}

			in := asset.PublishInput{Source: source}
			if noMerge {
				merge := false
				in.Merge = &merge
			}
			if keywords != "" {
				in.Keywords = strings.Split(keywords, ",")
			}
			if notes != "" {
				in.Notes = notes
			}
			if extraPins != "" {
				in.ExtraPins = strings.Split(extraPins, ",")
			}

			res, err := a.Publish(in)
			if err != nil {
				return err
			}

			fmt.Printf("published %s as %s\n", filepath.Join(parentDir, args[0]), res.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&parentDir, "parent", ".", "parent directory the asset lives under")
	cmd.Flags().StringVar(&source, "source", "", "file or directory to publish")
	cmd.Flags().StringVar(&keywords, "keywords", "", "comma-separated keywords to add")
	cmd.Flags().StringVar(&notes, "notes", "", "freeform notes to attach")
	cmd.Flags().StringVar(&extraPins, "pins", "", "comma-separated extra pin names to set")
	cmd.Flags().BoolVar(&noMerge, "no-merge", false, "do not carry forward files from the previous version")
	cmd.Flags().BoolVar(&verifyCopy, "verify", false, "verify each copy byte-for-byte")
	cmd.MarkFlagRequired("source")

	return cmd
}

func newDeleteVersionCmd() *cobra.Command {
	var parentDir string

	cmd := &cobra.Command{
		Use:   "delete-version <asset-name> <version>",
		Short: "Delete a single version of an asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := asset.Open(parentDir, args[0], nil)
			if err != nil {
				return err
			}
			return a.DeleteVersion(args[1])
		},
	}
	cmd.Flags().StringVar(&parentDir, "parent", ".", "parent directory the asset lives under")
	return cmd
}

func newCollapseCmd() *cobra.Command {
	var (
		parentDir   string
		cascadePins bool
	)

	cmd := &cobra.Command{
		Use:   "collapse <asset-name>",
		Short: "Retain only the highest version of an asset, deleting the rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := asset.Open(parentDir, args[0], nil)
			if err != nil {
				return err
			}
			return a.Collapse(cascadePins)
		},
	}
	cmd.Flags().StringVar(&parentDir, "parent", ".", "parent directory the asset lives under")
	cmd.Flags().BoolVar(&cascadePins, "cascade-pins", false, "relocate/delete pins on collapsed versions instead of failing")
	return cmd
}

func newScrubCmd() *cobra.Command {
	var parentDir string

	cmd := &cobra.Command{
		Use:   "scrub <asset-name>",
		Short: "Remove versions left behind by a publish that failed partway through",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := asset.Open(parentDir, args[0], nil)
			if err != nil {
				return err
			}
			scrubbed, err := a.Scrub()
			if err != nil {
				return err
			}
			for _, v := range scrubbed {
				fmt.Println(v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&parentDir, "parent", ".", "parent directory the asset lives under")
	return cmd
}
