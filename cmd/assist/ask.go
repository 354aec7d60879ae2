package main

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/MegaGrindStone/ollama-assistant/internal/prompts"
	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Stream a completion for a single prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			return printStream(cmd.OutOrStdout(), a.ollama.StreamGenerate(cmd.Context(), a.cfg.Model, prompt))
		},
	}
}

func newExplainCmd(a *app) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "explain <file>",
		Short: "Explain the code in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading file: %w", err)
			}
			if strings.TrimSpace(string(code)) == "" {
				return fmt.Errorf("%s is empty", args[0])
			}
			if language == "" {
				language = languageOf(args[0])
			}

			prompt := prompts.ExplainCode(language, string(code))
			return printStream(cmd.OutOrStdout(), a.ollama.StreamGenerate(cmd.Context(), a.cfg.Model, prompt))
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "language of the code (default: from the file extension)")

	return cmd
}

// printStream writes the cumulative snapshots of seq as one growing text: only the part of each snapshot that
// was not printed yet is written.
func printStream(w io.Writer, seq iter.Seq2[string, error]) error {
	printed := 0
	for snapshot, err := range seq {
		if err != nil {
			fmt.Fprintln(w)
			return err
		}
		if _, err := io.WriteString(w, snapshot[printed:]); err != nil {
			return err
		}
		printed = len(snapshot)
	}
	_, err := fmt.Fprintln(w)
	return err
}

var extLanguages = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".html": "html",
	".css":  "css",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".rb":   "ruby",
	".sh":   "shell",
}

func languageOf(path string) string {
	if l, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return l
	}
	return "plaintext"
}

func isCanceled(ctx context.Context) bool {
	return ctx.Err() != nil
}
