package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/scope"
	"github.com/forgetful-ai/forgetful/internal/tools"
)

// toolError is the structured tool-error shape: {code, message, ...}.
// Every meta-tool returns errors through this field
// rather than as a raw MCP tool error, so a client always sees the same
// shape regardless of which meta-tool it called.
type toolError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RequiredScope string `json:"required_scope,omitempty"`
}

func errorFrom(err error) *toolError {
	if err == nil {
		return nil
	}
	te := &toolError{Code: string(apperr.KindOf(err)), Message: err.Error()}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		te.RequiredScope = appErr.RequiredScope
	}
	return te
}

type discoverInput struct {
	Category string `json:"category,omitempty" jsonschema:"Restrict to one tool category; omit for every permitted tool"`
}

type discoverOutput struct {
	Tools []tools.Summary `json:"tools"`
	Error *toolError      `json:"error,omitempty"`
}

type howToUseInput struct {
	ToolName string `json:"tool_name" jsonschema:"required,Name of the tool to describe"`
}

type howToUseOutput struct {
	Tool  *tools.Metadata `json:"tool,omitempty"`
	Error *toolError      `json:"error,omitempty"`
}

type executeInput struct {
	ToolName  string         `json:"tool_name" jsonschema:"required,Name of the tool to invoke"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"Tool-specific argument object"`
}

type executeOutput struct {
	Result any        `json:"result,omitempty"`
	Error  *toolError `json:"error,omitempty"`
}

// discover implements discover_forgetful_tools. Split out from the
// mcp.AddTool registration so it can be exercised directly in tests
// without standing up an MCP transport.
func (s *Server) discover(args discoverInput) discoverOutput {
	var category *scope.Category
	if args.Category != "" {
		c := scope.Category(args.Category)
		category = &c
	}
	return discoverOutput{Tools: s.dispatcher.Discover(category, s.permitted)}
}

// howToUse implements how_to_use_forgetful_tool.
func (s *Server) howToUse(args howToUseInput) howToUseOutput {
	meta, err := s.dispatcher.HowToUse(args.ToolName, s.permitted)
	if err != nil {
		return howToUseOutput{Error: errorFrom(err)}
	}
	return howToUseOutput{Tool: meta}
}

// execute implements execute_forgetful_tool.
func (s *Server) execute(ctx context.Context, args executeInput) executeOutput {
	result, err := s.dispatcher.Execute(ctx, s.userID, args.ToolName, args.Arguments, s.permitted)
	if err != nil {
		return executeOutput{Error: errorFrom(err)}
	}
	return executeOutput{Result: result}
}

// registerMetaTools registers the three always-permitted meta-tools
// (discover_forgetful_tools, how_to_use_forgetful_tool,
// execute_forgetful_tool). They are never looked up through the registry
// itself — they are the front door to it.
func (s *Server) registerMetaTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "discover_forgetful_tools",
		Description: "List tools available to the caller, optionally filtered by category, without their full argument schema.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args discoverInput) (*mcp.CallToolResult, discoverOutput, error) {
		return nil, s.discover(args), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "how_to_use_forgetful_tool",
		Description: "Return a tool's full metadata, including its JSON Schema and examples.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args howToUseInput) (*mcp.CallToolResult, howToUseOutput, error) {
		return nil, s.howToUse(args), nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "execute_forgetful_tool",
		Description: "Invoke a registered tool by name with its argument object.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args executeInput) (*mcp.CallToolResult, executeOutput, error) {
		return nil, s.execute(ctx, args), nil
	})
}
