package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MegaGrindStone/ollama-assistant/internal/session"
	"github.com/spf13/cobra"
)

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model; /clear starts over, /exit quits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := session.New(a.ollama, a.cfg.Model, a.cfg.SystemPrompt, a.logger)
			return runChat(cmd.Context(), s, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func runChat(ctx context.Context, s *session.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprintf(out, "Chatting with %s. /clear starts over, /exit quits.\n", s.Model())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			s.Clear()
			fmt.Fprintln(out, "Chat cleared.")
			continue
		}

		err := printStream(out, s.Send(ctx, line))
		if isCanceled(ctx) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}
