// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bvz2000/squirrel/internal/squirrelerr"
	"github.com/bvz2000/squirrel/name"
)

func newNameCmd() *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "name <candidate-name>",
		Short: "Validate a proposed asset name against a token schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			parsed, err := name.Parse(args[0], schema)
			if err != nil {
				return err
			}
			fmt.Printf("tokens=%v description=%q variant=%q\n", parsed.Tokens, parsed.Description, parsed.Variant)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a YAML file describing the token schema")
	cmd.MarkFlagRequired("schema")
	return cmd
}

// loadSchema reads a nested YAML map of tokens into a name.Schema, via
// Viper's generic config unmarshaling rather than a bespoke YAML walker.
func loadSchema(path string) (name.Schema, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, squirrelerr.Wrap(squirrelerr.KindIO, err, "reading schema file %q", path)
	}

	raw := v.AllSettings()
	return toSchema(raw), nil
}

func toSchema(raw map[string]interface{}) name.Schema {
	schema := make(name.Schema, len(raw))
	for k, v := range raw {
		child, ok := v.(map[string]interface{})
		if !ok {
			schema[k] = name.Schema{}
			continue
		}
		schema[k] = toSchema(child)
	}
	return schema
}
