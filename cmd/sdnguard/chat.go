package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sdnguard/pkg/assistant"
	"github.com/Mindburn-Labs/sdnguard/pkg/session"
)

func newChatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant on the terminal",
		Long:  `Reads one message per line from stdin. "exit" or "quit" ends the session.`,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(ctx) }()
			return repl(cmd, a.assistant, sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", session.DefaultID, "conversation to continue")
	return cmd
}

func repl(cmd *cobra.Command, svc *assistant.Service, sessionID string) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintln(out, `sdnguard chat. Type "exit" to leave.`)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !in.Scan() {
			_, _ = fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp := svc.Chat(cmd.Context(), assistant.ChatRequest{Message: line, SessionID: sessionID})
		printReply(out, resp)
	}
}

func printReply(out io.Writer, resp assistant.ChatResponse) {
	if resp.Error != nil {
		_, _ = fmt.Fprintf(out, "error [%s]: %s\n", resp.Error.Kind, resp.Error.Detail())
		return
	}
	_, _ = fmt.Fprintln(out, resp.Response)
}
