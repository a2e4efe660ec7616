package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var runtime string
	cmd := &cobra.Command{
		Use:   "run <file.py|->",
		Short: "Run a python program the way the preview runs it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if runtime != "" {
				cfg.Interpreter.Runtime = runtime
			}

			var src []byte
			if args[0] == "-" {
				src, err = io.ReadAll(cmd.InOrStdin())
			} else {
				src, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			bridge := newBridge(cfg.Interpreter)
			defer func() { _ = bridge.Close(context.Background()) }()

			out, err := bridge.Run(cmd.Context(), string(src))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&runtime, "runtime", "", "URL or path of the CPython WASI module")
	return cmd
}
