package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	playground "github.com/devlearn/playground"
)

func newComposeCmd() *cobra.Command {
	var (
		tab string
		out string
	)
	cmd := &cobra.Command{
		Use:   "compose <template|scenario|challenge>",
		Short: "Write the preview document of a catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lib, err := loadLibrary(cfg)
			if err != nil {
				return err
			}
			active, err := playground.ParseLanguage(tab)
			if err != nil {
				return err
			}

			b, ok := lib.Current().Find(args[0])
			if !ok {
				return &playground.NotFoundError{Kind: "template", Name: args[0]}
			}
			buffers := b.Buffers
			if b.Kind != playground.KindScenario {
				buffers = buffers.WithoutPython()
			}
			doc := playground.Compose(buffers, active, playground.DefaultComposeOptions())

			if out == "" || out == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			if err := os.WriteFile(out, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tab, "tab", string(playground.HTML), "active tab: html, css, javascript or python")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: stdout)")
	return cmd
}
