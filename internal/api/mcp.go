package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/wcdata/internal/cache"
	"github.com/kalambet/wcdata/internal/querykey"
	"github.com/kalambet/wcdata/internal/resolver"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Registry *resolver.Registry
}

// NewMCPServer creates an MCP server exposing the resource data store.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"wcdata",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("wcdata: cached access to WooCommerce REST resources such as products and orders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_item",
			mcp.WithDescription("Return one item of a resource, fetching it only when it is not cached."),
			mcp.WithString("resource", mcp.Description("Resource name, e.g. products"), mcp.Required()),
			mcp.WithString("id", mcp.Description("Item id"), mcp.Required()),
			mcp.WithBoolean("refresh", mcp.Description("Fetch even when cached")),
		),
		mcpGetItem(deps),
	)

	s.AddTool(
		mcp.NewTool("list_items",
			mcp.WithDescription("Return the items matching a query, fetching the list only when it is not cached."),
			mcp.WithString("resource", mcp.Description("Resource name, e.g. orders"), mcp.Required()),
			mcp.WithString("query", mcp.Description(`Query as a JSON object, e.g. {"status":"processing","per_page":20}`)),
			mcp.WithBoolean("refresh", mcp.Description("Fetch even when cached")),
		),
		mcpListItems(deps),
	)

	s.AddTool(
		mcp.NewTool("query_key",
			mcp.WithDescription("Return the canonical cache key of a query."),
			mcp.WithString("query", mcp.Description("Query as a JSON object"), mcp.Required()),
		),
		mcpQueryKey(),
	)

	s.AddResource(
		mcp.NewResource(
			"cache://stats",
			"Cache Stats",
			mcp.WithResourceDescription("Item, query and error counts per resource"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpGetItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r, errRes := mcpResolver(deps, req)
		if errRes != nil {
			return errRes, nil
		}
		raw, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		id, err := cache.NewID(strings.TrimSpace(raw))
		if err != nil {
			return mcpError(fmt.Sprintf("invalid id: %v", err)), nil
		}

		var item cache.Item
		if req.GetBool("refresh", false) {
			item, err = r.GetItem(ctx, id)
		} else {
			item, err = r.SelectItem(ctx, id)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("get %s %s failed: %v", r.Resource().Name, id, err)), nil
		}
		return mcpJSON(item)
	}
}

func mcpListItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		r, errRes := mcpResolver(deps, req)
		if errRes != nil {
			return errRes, nil
		}
		q, err := parseQuery(req.GetString("query", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		key, err := querykey.Encode(q)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid query: %v", err)), nil
		}

		var items []cache.Item
		if req.GetBool("refresh", false) {
			items, err = r.GetItems(ctx, q)
		} else {
			items, err = r.SelectItems(ctx, q)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("list %s failed: %v", r.Resource().Name, err)), nil
		}

		total, ok := cache.GetItemsTotalCount(r.Store().State(), q)
		if !ok {
			total = len(items)
		}
		return mcpJSON(struct {
			Key   string       `json:"key"`
			Total int          `json:"total"`
			Items []cache.Item `json:"items"`
		}{key, total, items})
	}
}

func mcpQueryKey() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		q, err := parseQuery(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		key, err := querykey.Encode(q)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid query: %v", err)), nil
		}
		return mcpText(key), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Registry.Stats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
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

func mcpResolver(deps MCPDeps, req mcp.CallToolRequest) (*resolver.Resolver, *mcp.CallToolResult) {
	name, err := req.RequireString("resource")
	if err != nil || strings.TrimSpace(name) == "" {
		return nil, mcpError("resource is required")
	}
	r, err := deps.Registry.Resolver(strings.TrimSpace(name))
	if err != nil {
		return nil, mcpError(fmt.Sprintf("unknown resource: %v", err))
	}
	return r, nil
}

// parseQuery decodes a JSON object. An empty string is the empty query.
func parseQuery(raw string) (querykey.Query, error) {
	q := querykey.Query{}
	if strings.TrimSpace(raw) == "" {
		return q, nil
	}
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %v", err)
	}
	if q == nil {
		q = querykey.Query{}
	}
	return q, nil
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
