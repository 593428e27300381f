package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/routesmith/internal/gateway"
	"github.com/kalambet/routesmith/internal/wizard"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and deploy a route interactively",
	Long: `Walks through query → schema → sources → extraction → deploy against a
running server. At any prompt, "b" goes back one step and "q" quits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		b := newBuilder(client, cmd.InOrStdin(), cmd.OutOrStdout())
		res, err := b.run(cmd.Context())
		if errors.Is(err, errAborted) {
			printWarning("aborted, nothing deployed")
			return nil
		}
		if err != nil {
			return err
		}
		printSuccess("Route %s deployed", res.Route)
		fmt.Fprintln(cmd.OutOrStdout(), res.CurlCommand)
		return nil
	},
}

var errAborted = errors.New("aborted")

type action int

const (
	actNone action = iota
	actBack
	actQuit
)

type builder struct {
	client *apiClient
	in     *bufio.Scanner
	out    io.Writer
	m      *wizard.Machine
}

func newBuilder(client *apiClient, in io.Reader, out io.Writer) *builder {
	return &builder{
		client: client,
		in:     bufio.NewScanner(in),
		out:    out,
		m:      wizard.New(),
	}
}

func (b *builder) prompt(label string) (string, action, error) {
	fmt.Fprint(b.out, colorize(colorBold, label))
	if !b.in.Scan() {
		if err := b.in.Err(); err != nil {
			return "", actNone, err
		}
		return "", actNone, fmt.Errorf("input closed: %w", io.ErrUnexpectedEOF)
	}
	line := strings.TrimSpace(b.in.Text())
	switch strings.ToLower(line) {
	case "b", "back":
		return "", actBack, nil
	case "q", "quit":
		return "", actQuit, nil
	}
	return line, actNone, nil
}

func (b *builder) back() {
	if _, err := b.m.Fire(wizard.Back, nil); err != nil {
		printWarning("nothing to go back to")
	}
}

func (b *builder) run(ctx context.Context) (deployResult, error) {
	if _, err := b.m.Fire(wizard.Start, nil); err != nil {
		return deployResult{}, err
	}

	for {
		switch b.m.State() {
		case wizard.Query:
			line, act, err := b.prompt("What data do you want? ")
			if err != nil {
				return deployResult{}, err
			}
			switch {
			case act == actQuit:
				return deployResult{}, errAborted
			case act == actBack:
				b.back()
				continue
			case line == "":
				continue
			}
			printStep("Generating schema")
			_, err = b.m.Fire(wizard.SubmitQuery, func(d *wizard.Draft) error {
				schema, err := b.generateSchema(ctx, line)
				d.Query, d.Schema = line, schema
				return err
			})
			if err != nil {
				printError("%v", err)
			}

		case wizard.Schema:
			fmt.Fprintln(b.out, indentJSON(b.m.Draft().Schema))
			_, act, err := b.prompt("Accept schema? [enter] accept, b back, q quit: ")
			if err != nil {
				return deployResult{}, err
			}
			switch act {
			case actQuit:
				return deployResult{}, errAborted
			case actBack:
				b.back()
				continue
			}
			printStep("Searching for sources")
			b.m.Fire(wizard.AcceptSchema, func(d *wizard.Draft) error {
				results, err := b.search(ctx, d.Query)
				if err != nil {
					printWarning("search unavailable: %v", err)
				}
				d.Candidates = results
				return nil
			})

		case wizard.Sources:
			candidates := b.m.Draft().Candidates
			for i, c := range candidates {
				fmt.Fprintf(b.out, "  %d. %s\n     %s\n", i+1, c.Title, c.URL)
			}
			line, act, err := b.prompt("Sources (numbers or URLs, comma-separated): ")
			if err != nil {
				return deployResult{}, err
			}
			switch act {
			case actQuit:
				return deployResult{}, errAborted
			case actBack:
				b.back()
				continue
			}
			urls, err := parseSelection(line, candidates)
			if err != nil {
				printError("%v", err)
				continue
			}
			b.m.Fire(wizard.SelectSources, func(d *wizard.Draft) error {
				d.Sources = urls
				return nil
			})

		case wizard.Extract:
			printStep("Extracting from %d source(s)", len(b.m.Draft().Sources))
			_, err := b.m.Fire(wizard.Extracted, func(d *wizard.Draft) error {
				data, err := b.extract(ctx, *d)
				d.Data = data
				return err
			})
			if err != nil {
				printError("%v", err)
				b.back()
			}

		case wizard.Deploy:
			d := b.m.Draft()
			fmt.Fprintln(b.out, indentJSON(d.Data))
			line, act, err := b.prompt("Route name (enter to derive from the query): ")
			if err != nil {
				return deployResult{}, err
			}
			switch act {
			case actQuit:
				return deployResult{}, errAborted
			case actBack:
				// Going back re-runs extraction.
				b.back()
				continue
			}
			name := line
			if name == "" {
				name = d.Query
			}
			var res deployResult
			_, err = b.m.Fire(wizard.Deployed, func(d *wizard.Draft) error {
				var err error
				res, err = b.deploy(ctx, name, *d)
				d.Endpoint = res.Route
				return err
			})
			if err != nil {
				printError("%v", err)
				continue
			}
			return res, nil

		default:
			return deployResult{}, fmt.Errorf("unexpected builder state %s", b.m.State())
		}
	}
}

func (b *builder) generateSchema(ctx context.Context, query string) (json.RawMessage, error) {
	var resp struct {
		Schema json.RawMessage `json:"schema"`
	}
	if err := b.client.call(ctx, http.MethodPost, "/schema", map[string]string{"query": query}, &resp); err != nil {
		return nil, err
	}
	return resp.Schema, nil
}

func (b *builder) search(ctx context.Context, query string) ([]gateway.SearchResult, error) {
	var resp struct {
		Results []gateway.SearchResult `json:"results"`
	}
	if err := b.client.call(ctx, http.MethodPost, "/search", map[string]any{"query": query}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (b *builder) extract(ctx context.Context, d wizard.Draft) (json.RawMessage, error) {
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	body := map[string]any{"urls": d.Sources, "query": d.Query, "schema": d.Schema}
	if err := b.client.call(ctx, http.MethodPost, "/extract", body, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (b *builder) deploy(ctx context.Context, name string, d wizard.Draft) (deployResult, error) {
	body := map[string]any{
		"key": name,
		"data": map[string]any{
			"data": d.Data,
			"metadata": map[string]any{
				"query":       d.Query,
				"schema":      d.Schema,
				"sources":     d.Sources,
				"searchQuery": d.Query,
			},
		},
	}
	var res deployResult
	err := b.client.call(ctx, http.MethodPost, "/deploy", body, &res)
	return res, err
}

// parseSelection turns "1, 3, https://x.com" into URLs. Numbers index the
// search candidates starting at 1.
func parseSelection(line string, candidates []gateway.SearchResult) ([]string, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return nil, errors.New("select at least one source")
	}

	seen := make(map[string]bool)
	var urls []string
	for _, f := range fields {
		u := f
		if n, err := strconv.Atoi(f); err == nil {
			if n < 1 || n > len(candidates) {
				return nil, fmt.Errorf("no source numbered %d", n)
			}
			u = candidates[n-1].URL
		} else if !strings.HasPrefix(f, "http://") && !strings.HasPrefix(f, "https://") {
			return nil, fmt.Errorf("%q is neither a number nor an http(s) URL", f)
		}
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls, nil
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(b)
}
