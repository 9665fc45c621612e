package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "qconv",
		Short:        "Simulated-quantization convolution for quantization-aware training",
		SilenceUsage: true,
	}
	root.AddCommand(newVersionCommand(), newInfoCommand(), newDemoCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qconv %s\n", version)
		},
	}
}
