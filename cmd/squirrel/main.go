// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "squirrel",
		Short: "A filesystem-backed, content-addressed, versioned asset store",
		Long:  "squirrel publishes, pins, and inspects versioned assets stored as symlink trees over a deduplicated content pool.",
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a squirrel config file (overrides SQUIRREL_CONFIG)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newPublishCmd(),
		newPinCmd(),
		newDeleteVersionCmd(),
		newCollapseCmd(),
		newScrubCmd(),
		newNameCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if serr, ok := asSquirrelErr(err); ok {
			os.Exit(serr.Code)
		}
		os.Exit(1)
	}
}

func asSquirrelErr(err error) (*squirrelerr.Error, bool) {
	serr, ok := err.(*squirrelerr.Error)
	return serr, ok
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("squirrel 0.1.0")
		},
	}
}
