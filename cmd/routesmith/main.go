package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor   bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "routesmith",
	Short: "Turn web pages into JSON endpoints",
	Long: `routesmith extracts structured data from web pages with an LLM-backed
gateway and serves each result under a stable route at /results/<key>.

Run "routesmith serve" to start the service, then "routesmith build" to
create a route interactively.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "routesmith server URL (default http://127.0.0.1:<server.port>)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("routesmith version %s\n", version))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
