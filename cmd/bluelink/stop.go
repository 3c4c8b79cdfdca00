package main

import (
	"github.com/spf13/cobra"

	"github.com/openblinds/bluelink/internal/blue"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop <device-address>",
	Short: "Stop a moving blind",
	Long: `Stop a blind's motor wherever it currently is.

Useful for halting a move mid-way; the blind reports its resting position
in subsequent advertisements.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deliverCommand(cmd, args[0], blue.Stop{})
	},
}
