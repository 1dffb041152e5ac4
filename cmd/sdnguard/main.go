// Command sdnguard runs the SDN security assistant: an HTTP chat service, an
// interactive console and a few operator utilities.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks bad invocations; they exit with status 2.
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return execute(root, stderr)
}

func execute(root *cobra.Command, stderr io.Writer) int {
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(stderr, "sdnguard: %v\n", err)
		var ue usageError
		if errors.As(err, &ue) {
			_, _ = fmt.Fprintln(stderr, root.UsageString())
			return 2
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sdnguard",
		Short: "Conversational security assistant for a Ryu-controlled network",
		Long: `sdnguard lets an operator inspect and change the firewall of an
OpenFlow network in plain language. A language model decides which controller
and threat-intelligence actions to run; sdnguard runs them and reports back.

Without a subcommand it behaves like "sdnguard serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		RunE:          runServe,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newActionsCmd(),
		newHealthCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sdnguard version",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sdnguard %s\n", version)
			return err
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}
