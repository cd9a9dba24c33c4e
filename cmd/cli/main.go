package main

import (
	"context"
	"fmt"
	"github.com/joho/godotenv"
	"github.com/myrjola/vera/cmd/cli/extraction"
	"github.com/myrjola/vera/cmd/cli/investigate"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
)

func init() {
	// The .env file is optional; the environment may carry the keys directly.
	_ = godotenv.Load()
	rootCmd.PersistentFlags().String("config", "", "path to a YAML file applied on top of the default configuration")
	rootCmd.PersistentFlags().Bool("verbose", false, "log stage timings and debug information to stderr")
	rootCmd.AddGroup(investigate.Group)
	rootCmd.AddCommand(investigate.Investigate, investigate.Stages, investigate.Config)
	rootCmd.AddGroup(extraction.Group)
	rootCmd.AddCommand(extraction.Extract)
}

var rootCmd = &cobra.Command{
	Use:           "vera",
	Short:         "Investigate texts and web pages for disinformation",
	Long:          `VERA runs a text or the content of a URL through six research and analysis stages and reports disinformation and manipulation scores.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
