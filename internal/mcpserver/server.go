// Package mcpserver exposes notebooks to LLM clients as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
	"github.com/hyperjump/shiryo/internal/pdfdoc"
	"github.com/hyperjump/shiryo/pkg/utils"
)

const (
	defaultReadChars = 20000
	snippetRadius    = 60
)

// Server wraps the MCP server with the notebook tools.
type Server struct {
	mcp       *server.MCPServer
	notebooks *notebook.Service
	logger    *zap.Logger
}

// New creates an MCP server with every notebook tool registered.
func New(notebooks *notebook.Service, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{notebooks: notebooks, logger: logger}

	s.mcp = server.NewMCPServer(
		"Shiryo",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List notebooks, most recently updated first."),
		mcp.WithString("filter", mcp.Description("Optional case-insensitive title filter")),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the sources of a notebook in order, without their content."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook ID")),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("read_source",
		mcp.WithDescription("Read the extracted text of a source. Image sources have no text."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook ID")),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("Source ID")),
		mcp.WithNumber("max_chars", mcp.Description("Truncate the text to this many characters (default 20000)")),
	), s.readSource)

	s.mcp.AddTool(mcp.NewTool("search_sources",
		mcp.WithDescription("Keyword search across a notebook's sources. Hits name the page or slide they were found on."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook ID")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum hits (default 10)")),
		mcp.WithBoolean("fuzzy", mcp.Description("Tolerate typos")),
	), s.searchSources)

	s.mcp.AddTool(mcp.NewTool("search_pdf",
		mcp.WithDescription("Find every occurrence of a phrase inside one PDF source, with page numbers and snippets."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook ID")),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("PDF source ID")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Case-insensitive phrase")),
	), s.searchPDF)

	s.mcp.AddTool(mcp.NewTool("build_context",
		mcp.WithDescription("Return the numbered citation context ([[Source n]] blocks) the assistant answers from."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook ID")),
	), s.buildContext)

	return s
}

// ServeStdio serves MCP on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nbs, err := s.notebooks.ListNotebooks(ctx, req.GetString("filter", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if nbs == nil {
		nbs = []*models.Notebook{}
	}
	return jsonResult(nbs)
}

func (s *Server) listSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sources, err := s.notebooks.Sources(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]*models.SourceSummary, len(sources))
	for i, src := range sources {
		out[i] = src.Summary()
	}
	return jsonResult(out)
}

func (s *Server) source(ctx context.Context, req mcp.CallToolRequest) (*models.Source, error) {
	nb, err := req.RequireString("notebook_id")
	if err != nil {
		return nil, err
	}
	id, err := req.RequireString("source_id")
	if err != nil {
		return nil, err
	}
	return s.notebooks.Source(ctx, nb, id)
}

func (s *Server) readSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := s.source(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !src.Kind().TextBearing() {
		return mcp.NewToolResultError(fmt.Sprintf("%s is an image and has no text", src.Title)), nil
	}
	limit := req.GetInt("max_chars", defaultReadChars)
	if limit <= 0 {
		limit = defaultReadChars
	}
	return mcp.NewToolResultText(utils.TruncateRunes(src.Content, limit)), nil
}

func (s *Server) searchSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.notebooks.Search(ctx, models.KeywordQuery{
		NotebookID: nb,
		Query:      query,
		Limit:      req.GetInt("limit", 10),
		Fuzzy:      req.GetBool("fuzzy", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp)
}

// pdfHit is one occurrence reported by search_pdf.
type pdfHit struct {
	Page    int    `json:"page"`
	Offset  int    `json:"offset"`
	Snippet string `json:"snippet"`
}

func (s *Server) searchPDF(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := s.source(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if src.Kind() != models.KindPDF {
		return mcp.NewToolResultError(fmt.Sprintf("%s is not a pdf", src.Title)), nil
	}
	data, err := src.RawBytes()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := pdfdoc.Open(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, pageErrs := doc.Search(query)
	for _, err := range pageErrs {
		s.logger.Warn("pdf search skipped page", zap.String("source", src.ID), zap.Error(err))
	}
	out := make([]pdfHit, 0, len(hits))
	texts := make(map[int][]rune)
	for _, h := range hits {
		text, ok := texts[h.Page]
		if !ok {
			if page, err := doc.Page(h.Page); err == nil {
				text = []rune(page.Text())
			}
			texts[h.Page] = text
		}
		out = append(out, pdfHit{Page: h.Page, Offset: h.Offset, Snippet: snippet(text, h.Offset, len([]rune(query)))})
	}
	return jsonResult(map[string]interface{}{"source_id": src.ID, "query": query, "hits": out})
}

// snippet returns the text around [offset, offset+n) with snippetRadius runes
// of context on each side.
func snippet(text []rune, offset, n int) string {
	if offset < 0 || offset > len(text) {
		return ""
	}
	start := max(0, offset-snippetRadius)
	end := min(len(text), offset+n+snippetRadius)
	out := string(text[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return out
}

func (s *Server) buildContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.notebooks.BuildContext(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if text == "" {
		return mcp.NewToolResultText("(no text sources)"), nil
	}
	return mcp.NewToolResultText(text), nil
}
