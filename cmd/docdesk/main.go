package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/docdesk/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, document workers and bot webhooks",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runServe()
		},
	}
	root := &cobra.Command{
		Use:           "docdesk",
		Short:         "Document desk: uploads, previews, text extraction and a chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          serve.RunE,
	}
	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docdesk %s\n", version.GetInfo())
		},
	})
	return root
}
