package main

import (
	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/blue"
)

// closeCmd represents the close command
var closeCmd = &cobra.Command{
	Use:   "close <device-address>",
	Short: "Close a blind fully",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deliverCommand(cmd, args[0], blue.MoveToPosition{Percent: blue.FullyClosedPosition})
	},
}
