package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/livevoice/logger"
)

var rootCmd = &cobra.Command{
	Use:          "livevoice",
	Short:        "Talk to Gemini in real time from your terminal",
	Version:      GetVersion(),
	SilenceUsage: true,
	Long: `livevoice streams your microphone to the Gemini Live API and plays the
spoken reply as it arrives, with live transcripts of both sides.

Build with -tags portaudio for microphone and speaker support. Without it a
test tone stands in for the microphone and replies are not audible.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("verbose") {
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting verbose flag: %v\n", err)
				return
			}
			logger.SetVerbose(verbose)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	rootCmd.SetVersionTemplate(GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
