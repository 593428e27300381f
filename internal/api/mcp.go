package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/routesmith/internal/routes"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Routes    *routes.Manager
	PublicURL string
}

// NewMCPServer creates an MCP server exposing the route lifecycle as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"routesmith",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("routesmith serves structured data extracted from web pages under named routes. Use these tools to list, read, refresh and delete routes."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_routes",
			mcp.WithDescription("List every deployed route with its sources, query and last update time."),
		),
		mcpListRoutes(deps),
	)

	s.AddTool(
		mcp.NewTool("get_route",
			mcp.WithDescription("Return the data stored under a route."),
			mcp.WithString("endpoint", mcp.Description("Route key, e.g. nvidia-market-cap"), mcp.Required()),
			mcp.WithBoolean("include_schema", mcp.Description("Return the full envelope including the JSON Schema (default false)")),
		),
		mcpGetRoute(deps),
	)

	s.AddTool(
		mcp.NewTool("refresh_route",
			mcp.WithDescription("Re-run extraction for a route using its stored sources, query and schema."),
			mcp.WithString("endpoint", mcp.Description("Route key"), mcp.Required()),
		),
		mcpRefreshRoute(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_route",
			mcp.WithDescription("Delete a route. Deleting a missing route succeeds."),
			mcp.WithString("endpoint", mcp.Description("Route key"), mcp.Required()),
		),
		mcpDeleteRoute(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"routes://index",
			"Route Index",
			mcp.WithResourceDescription("All deployed routes as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceIndex(deps),
	)

	return s
}

func mcpListRoutes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := deps.Routes.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing routes failed: %v", err)), nil
		}
		return mcpJSON(withPublicURLs(deps.PublicURL, list))
	}
}

func mcpGetRoute(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		endpoint, err := req.RequireString("endpoint")
		if err != nil {
			return mcpError("endpoint is required"), nil
		}

		env, err := deps.Routes.Read(ctx, endpoint)
		if err != nil {
			return mcpError(routeErrorText(err)), nil
		}
		if req.GetBool("include_schema", false) {
			return mcpJSON(env)
		}
		return mcpJSON(env.Result())
	}
}

func mcpRefreshRoute(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		endpoint, err := req.RequireString("endpoint")
		if err != nil {
			return mcpError("endpoint is required"), nil
		}

		env, err := deps.Routes.Refresh(ctx, endpoint)
		if err != nil {
			return mcpError(routeErrorText(err)), nil
		}
		return mcpJSON(env.Result())
	}
}

func mcpDeleteRoute(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		endpoint, err := req.RequireString("endpoint")
		if err != nil {
			return mcpError("endpoint is required"), nil
		}

		key, err := deps.Routes.Delete(ctx, endpoint)
		if err != nil {
			return mcpError(routeErrorText(err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted route %s", key)), nil
	}
}

func mcpResourceIndex(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := deps.Routes.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list routes: %w", err)
		}

		b, err := json.Marshal(withPublicURLs(deps.PublicURL, list))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal routes: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// routeErrorText mirrors the HTTP error messages.
func routeErrorText(err error) string {
	var gwErr *routes.GatewayError
	switch {
	case errors.As(err, &gwErr):
		return gwErr.Message
	case errors.Is(err, routes.ErrCorrupt):
		return "stored route data is corrupted"
	case errors.Is(err, routes.ErrTransport):
		return "storage unavailable: " + err.Error()
	default:
		return err.Error()
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
