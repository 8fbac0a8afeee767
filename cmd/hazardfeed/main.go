package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/client"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hazardfeed",
	Short: "hazardfeed - disaster reports and hazard zones in real time",
	Long: `hazardfeed collects disaster reports from the public, keeps a map of
hazard zones in sync with an external source, and pushes both to
connected clients as they change.

Run "hazardfeed serve" to start the server; the other commands talk to a
running server over its HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hazardfeed version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("server", envOr("HAZARDFEED_URL", "http://localhost:5000"), "Server base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("HAZARDFEED_TOKEN"), "Bearer token for authenticated commands")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hazardfeed version %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
	},
}

// newClient builds an API client from the persistent flags
func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")

	c := client.NewClient(server)
	c.SetToken(token)
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
