package mcp

import "github.com/mark3labs/mcp-go/mcp"

var ingestToolDef = mcp.NewTool("interaction_ingest",
	mcp.WithDescription("Ingest a recorded capture log (.jsonl, one raw network event per line) of a "+
		"web-search-augmented chat exchange. Reconstructs the streamed document, extracts the search "+
		"queries, ranked sources and response citations, and reports which cited URLs were actually "+
		"returned by search. Stores the interaction unless dry_run is set."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Capture log path. Must be directly in ~/.citelens/captures or a configured allowed_paths entry."),
	),
	mcp.WithString("label",
		mcp.Description("Optional label for the stored interaction (max 200 characters)."),
	),
	mcp.WithBoolean("dry_run",
		mcp.Description("Return the full result without storing it."),
	),
)

var fetchToolDef = mcp.NewTool("interaction_fetch",
	mcp.WithDescription("Fetch a stored interaction: queries, sources, matched citations, metrics and warnings."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Interaction ID returned by interaction_ingest."),
	),
	mcp.WithBoolean("include_text",
		mcp.Description("Include the reconstructed response text (default true)."),
	),
)

var listToolDef = mcp.NewTool("interaction_list",
	mcp.WithDescription("List stored interactions with their metrics, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)."),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of interactions to skip."),
	),
)

var deleteToolDef = mcp.NewTool("interaction_delete",
	mcp.WithDescription("Permanently delete a stored interaction."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Interaction ID."),
	),
)

var exportToolDef = mcp.NewTool("interaction_export",
	mcp.WithDescription("Export stored interactions to a JSONL file."),
	mcp.WithString("path",
		mcp.Description("Destination .jsonl path. Defaults to ~/.citelens/exports/<id|all>-<timestamp>.jsonl."),
	),
	mcp.WithArray("ids",
		mcp.Description("Interaction IDs to export. Omit to export all."),
		mcp.Items(map[string]any{"type": "string"}),
	),
)

var importToolDef = mcp.NewTool("interaction_import",
	mcp.WithDescription("Import interactions from a JSONL export file."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Export file path."),
	),
	mcp.WithString("mode",
		mcp.Description("Collision handling: error (default, import nothing), replace, or skip."),
		mcp.Enum("error", "replace", "skip"),
	),
)
