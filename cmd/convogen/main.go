package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "convogen",
		Short: "Synthesize multi-turn user/chatbot conversation datasets",
		Long: `convogen generates multi-turn conversational datasets between a
simulated user persona and a simulated chatbot persona, both driven by
language models, for downstream training or evaluation use.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newGenerateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
