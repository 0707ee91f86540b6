package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hazyhaar/trialmap/pkg/kit"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerMCPTools registers the trialmap MCP tools on the server.
func registerMCPTools(srv *server.MCPServer, ep *endpoints) {
	registerResolve(srv, ep)
	registerLookupDrug(srv, ep)
	registerListRuns(srv, ep)
}

func registerResolve(srv *server.MCPServer, ep *endpoints) {
	tool := mcp.NewTool("resolve_interventions",
		mcp.WithDescription(fmt.Sprintf("Map free-text clinical-trial drug interventions (up to %d) to DrugBank drugs through the exact, synonym, product, external identifier and fuzzy stages.", MaxResolve)),
		mcp.WithArray("interventions", mcp.Required(),
			mcp.Description("Interventions to resolve. nct_id defaults to q<index>, intervention_type to Drug."),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"nct_id":            map[string]any{"type": "string"},
					"intervention":      map[string]any{"type": "string"},
					"intervention_type": map[string]any{"type": "string"},
				},
				"required": []string{"intervention"},
			}),
		),
	)

	kit.RegisterMCPTool(srv, tool, ep.resolve, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r resolveReq
		if err := kit.BindArguments(req, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r, EnrichCtx: ensureRequestID}, nil
	})
}

func registerLookupDrug(srv *server.MCPServer, ep *endpoints) {
	tool := mcp.NewTool("lookup_drug",
		mcp.WithDescription("Look up a drug by canonical name, synonym or product name. Returns its DrugBank id, synonyms and products."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Drug, synonym or product name")),
	)

	kit.RegisterMCPTool(srv, tool, ep.lookup, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		name, _ := req.GetArguments()["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("name is required")
		}
		return &kit.MCPDecodeResult{Request: &lookupReq{Name: name}, EnrichCtx: ensureRequestID}, nil
	})
}

func registerListRuns(srv *server.MCPServer, ep *endpoints) {
	tool := mcp.NewTool("list_runs",
		mcp.WithDescription("List recent batch resolution runs with coverage and counts, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 50)")),
	)

	kit.RegisterMCPTool(srv, tool, ep.listRuns, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		limit, _ := req.GetArguments()["limit"].(float64)
		return &kit.MCPDecodeResult{Request: &listRunsReq{Limit: int(limit)}, EnrichCtx: ensureRequestID}, nil
	})
}

// ensureRequestID keeps the id set by the HTTP layer and mints one for
// tool calls that arrive without it.
func ensureRequestID(ctx context.Context) context.Context {
	if kit.GetRequestID(ctx) != "" {
		return ctx
	}
	return kit.WithRequestID(ctx, uuid.NewString())
}
