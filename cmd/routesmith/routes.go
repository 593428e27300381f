package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/routesmith/internal/routes"
)

// routeSummary mirrors one entry of GET /routes.
type routeSummary struct {
	Endpoint string `json:"endpoint"`
	URL      string `json:"url"`
	Config   struct {
		Query       string          `json:"query"`
		Schema      json.RawMessage `json:"schema,omitempty"`
		Sources     []string        `json:"sources"`
		LastUpdated json.RawMessage `json:"lastUpdated"`
	} `json:"config"`
}

type routeList struct {
	Success bool           `json:"success"`
	Routes  []routeSummary `json:"routes"`
}

var routesCmd = &cobra.Command{
	Use:     "routes",
	Aliases: []string{"route"},
	Short:   "Manage deployed routes",
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployed routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var list routeList
		if err := client.call(cmd.Context(), http.MethodGet, "/routes", nil, &list); err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output != "" && output != "table" {
			return writeOutput(cmd.OutOrStdout(), output, list.Routes)
		}
		printRouteTable(cmd.OutOrStdout(), list.Routes)
		return nil
	},
}

func printRouteTable(w io.Writer, list []routeSummary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No routes deployed.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tUPDATED\tSOURCES\tQUERY")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Endpoint, formatUpdated(r.Config.LastUpdated), len(r.Config.Sources), truncateText(r.Config.Query, 50))
	}
	tw.Flush()
}

// formatUpdated renders a stored timestamp for the table. Timestamps that are
// not RFC 3339 are shown as stored.
func formatUpdated(raw json.RawMessage) string {
	if t, ok := routes.ParseTimestamp(raw); ok {
		return t.Local().Format("2006-01-02 15:04")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	if v := strings.TrimSpace(string(raw)); v != "" && v != "null" {
		return truncateText(v, 24)
	}
	return "-"
}

var routesGetCmd = &cobra.Command{
	Use:   "get <endpoint>",
	Short: "Show the data served by a route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withSchema, _ := cmd.Flags().GetBool("schema")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := endpointPath("/results", args[0])
		if withSchema {
			path += "?schema=true"
		}

		var result map[string]json.RawMessage
		if err := client.call(cmd.Context(), http.MethodGet, path, nil, &result); err != nil {
			return err
		}
		delete(result, "success")
		return writeOutput(cmd.OutOrStdout(), output, result)
	},
}

var routesRefreshCmd = &cobra.Command{
	Use:   "refresh <endpoint>",
	Short: "Re-run extraction for a route with its stored sources, query and schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Refreshing %s", args[0])
		var result struct {
			Data json.RawMessage `json:"data"`
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/routes", map[string]string{"endpoint": args[0]}, &result); err != nil {
			return err
		}
		printSuccess("Route %s refreshed", args[0])
		output, _ := cmd.Flags().GetString("output")
		return writeOutput(cmd.OutOrStdout(), output, result.Data)
	},
}

var routesUpdateCmd = &cobra.Command{
	Use:   "update <endpoint>",
	Short: "Re-extract a route from new sources, query or schema",
	Long: `Re-extract a route from new sources, query or schema and overwrite it.
The stored value only changes when extraction succeeds.

Example:
  routesmith routes update nvidia-cap --url https://example.com/nvda \
    --query "NVIDIA market cap in USD" --schema-file schema.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		urls, _ := cmd.Flags().GetStringSlice("url")
		query, _ := cmd.Flags().GetString("query")
		schemaFile, _ := cmd.Flags().GetString("schema-file")
		if len(urls) == 0 || query == "" || schemaFile == "" {
			return fmt.Errorf("--url, --query and --schema-file are required")
		}
		schema, err := readJSONFile(schemaFile)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Extracting from %d source(s)", len(urls))
		var result struct {
			URL string `json:"url"`
		}
		body := map[string]any{"urls": urls, "query": query, "schema": schema}
		if err := client.call(cmd.Context(), http.MethodPut, endpointPath("/routes", args[0]), body, &result); err != nil {
			return err
		}
		printSuccess("Route updated: %s", result.URL)
		return nil
	},
}

var routesDeleteCmd = &cobra.Command{
	Use:   "delete <endpoint>",
	Short: "Delete a route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result struct {
			Message string `json:"message"`
		}
		if err := client.call(cmd.Context(), http.MethodDelete, endpointPath("/routes", args[0]), nil, &result); err != nil {
			return err
		}
		printSuccess("%s", result.Message)
		return nil
	},
}

var routesDeployCmd = &cobra.Command{
	Use:   "deploy <endpoint>",
	Short: "Deploy a prepared envelope ({data, metadata}) from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		envelope, err := readJSONFile(file)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result deployResult
		if err := client.call(cmd.Context(), http.MethodPost, "/deploy", map[string]any{"key": args[0], "data": envelope}, &result); err != nil {
			return err
		}
		printSuccess("Deployed %s", result.Route)
		fmt.Fprintln(cmd.OutOrStdout(), result.CurlCommand)
		return nil
	},
}

type deployResult struct {
	Route       string `json:"route"`
	URL         string `json:"url"`
	CurlCommand string `json:"curlCommand"`
}

func readJSONFile(path string) (json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

func truncateText(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	routesListCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	routesGetCmd.Flags().Bool("schema", false, "include metadata and the JSON Schema")
	routesGetCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	routesRefreshCmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	routesUpdateCmd.Flags().StringSlice("url", nil, "source URL (repeatable)")
	routesUpdateCmd.Flags().String("query", "", "what to extract")
	routesUpdateCmd.Flags().String("schema-file", "", "JSON Schema file, or - for stdin")
	routesDeployCmd.Flags().String("file", "", "envelope JSON file, or - for stdin")

	routesCmd.AddCommand(routesListCmd)
	routesCmd.AddCommand(routesGetCmd)
	routesCmd.AddCommand(routesRefreshCmd)
	routesCmd.AddCommand(routesUpdateCmd)
	routesCmd.AddCommand(routesDeleteCmd)
	routesCmd.AddCommand(routesDeployCmd)
}
