package main

import (
	"fmt"

	"github.com/MegaGrindStone/ollama-assistant/internal/handlers"
	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := a.ollama.ModelNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the Ollama server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.ollama.CheckConnection(cmd.Context()) {
				return fmt.Errorf("%s (%s)", handlers.ConnectionHint, a.ollama.Host())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ollama is running at %s\n", a.ollama.Host())
			return nil
		},
	}
}
