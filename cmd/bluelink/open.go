package main

import (
	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/blue"
)

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:   "open <device-address>",
	Short: "Open a blind fully",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deliverCommand(cmd, args[0], blue.MoveToPosition{Percent: blue.FullyOpenPosition})
	},
}
