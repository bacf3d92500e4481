// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bvz2000/squirrel/pin"
)

func newPinCmd() *cobra.Command {
	var parentDir string

	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "Set, remove, and resolve named pins on an asset",
	}

	setCmd := &cobra.Command{
		Use:   "set <asset-name> <pin-name> <version>",
		Short: "Set a pin to point at a version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pin.Set(filepath.Join(parentDir, args[0]), args[1], args[2])
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <asset-name> <pin-name>",
		Short: "Remove a pin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pin.Remove(filepath.Join(parentDir, args[0]), args[1])
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <asset-name> <pin-name>",
		Short: "Print the version a pin resolves to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := pin.Resolve(filepath.Join(parentDir, args[0]), args[1])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <asset-name>",
		Short: "List every pin on an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pins, err := pin.List(filepath.Join(parentDir, args[0]))
			if err != nil {
				return err
			}
			for name, version := range pins {
				fmt.Printf("%s -> %s\n", name, version)
			}
			return nil
		},
	}

	pinCmd.PersistentFlags().StringVar(&parentDir, "parent", ".", "parent directory the asset lives under")
	pinCmd.AddCommand(setCmd, removeCmd, resolveCmd, listCmd)
	return pinCmd
}
