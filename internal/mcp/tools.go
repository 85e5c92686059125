package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions referenced by the registry in server.go.

var collectToolDef = mcp.NewTool("collect",
	mcp.WithDescription("Research a historical event and write it into the vault as a Markdown note. The work is split into chunked API calls under the configured call and token budgets; partial results are kept when the budget runs out."),
	mcp.WithString("event",
		mcp.Description("Event name, e.g. \"Battle of Midway\""),
		mcp.Required(),
	),
	mcp.WithString("time_range",
		mcp.Description("Optional period to focus on, e.g. \"1939-1945\""),
	),
	mcp.WithNumber("chunks",
		mcp.Description("Number of chunked API calls to plan (defaults to DEFAULT_CHUNKS)"),
	),
)

var expandToolDef = mcp.NewTool("expand",
	mcp.WithDescription("Scan event notes for {Name (Year)} references, generate a structured detail note for each one that has none yet, and insert a [[link]] after the reference. Repeated calls converge once every reference is linked."),
	mcp.WithString("note",
		mcp.Description("Restrict the scan to a single note filename, e.g. \"World_War_II.md\""),
	),
	mcp.WithNumber("limit",
		mcp.Description("Cap on API calls for this run (defaults to MAX_API_CALLS)"),
	),
)

var runsToolDef = mcp.NewTool("runs",
	mcp.WithDescription("List recent collect/expand runs from the ledger with aggregate call and token usage."),
	mcp.WithString("kind",
		mcp.Description("Filter by run kind: collect or expand"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum rows to return (default 20, max 200)"),
	),
)

var doctorToolDef = mcp.NewTool("doctor",
	mcp.WithDescription("Check configuration, vault folders, the run ledger, and budget settings. Each check reports ok, warn, or fail."),
)
