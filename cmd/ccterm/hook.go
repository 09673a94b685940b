package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kinoh/ccterm/internal/hookintake"
)

func newHookCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Append a Claude Code hook event from stdin to a file",
		Long:  "Intended to be registered as a Claude Code Stop hook command: reads one JSON event from stdin and appends it, newline-terminated, to --out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, outPath)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "path to append the event to (required)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runHook(cmd *cobra.Command, outPath string) error {
	if err := hookintake.AppendStdinToFile(cmd.InOrStdin(), outPath); err != nil {
		return fmt.Errorf("hook: %w", err)
	}
	return nil
}
