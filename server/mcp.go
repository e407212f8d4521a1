package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/xhad/vidrag/pkg/rag"
)

// MCPTools adapts the video service to MCP tool handlers.
type MCPTools struct {
	service VideoService
}

func NewMCPTools(service VideoService) *MCPTools {
	return &MCPTools{service: service}
}

// NewMCPServer registers ask_video and summarize_video on a new MCP server.
func NewMCPServer(service VideoService, version string) *mcpserver.MCPServer {
	tools := NewMCPTools(service)
	s := mcpserver.NewMCPServer("vidrag", version, mcpserver.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("ask_video",
		mcp.WithDescription("Answer a question about a YouTube video using only its transcript"),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video id")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question about the video")),
		mcp.WithString("ground_truth", mcp.Description("Optional reference answer for the correctness metric")),
	), tools.AskVideo)

	s.AddTool(mcp.NewTool("summarize_video",
		mcp.WithDescription("Summarize a YouTube video from its transcript"),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("YouTube video id")),
		mcp.WithString("type",
			mcp.Description("Summary style"),
			mcp.Enum(rag.SummaryShort, rag.SummaryDetailed, "plain"),
		),
	), tools.SummarizeVideo)

	return s
}

// ServeMCP serves the tools over stdio until stdin closes.
func ServeMCP(service VideoService, version string) error {
	return mcpserver.ServeStdio(NewMCPServer(service, version))
}

func (t *MCPTools) AskVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := req.RequireString("video_id")
	if err != nil || strings.TrimSpace(videoID) == "" {
		return mcp.NewToolResultError("video_id is required"), nil
	}
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	resp, err := t.service.Ask(ctx, rag.AskRequest{
		VideoID:     videoID,
		Question:    question,
		GroundTruth: req.GetString("ground_truth", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(rag.UserMessage(err)), nil
	}

	text := resp.Answer
	if m := resp.Metrics; m != nil {
		text += fmt.Sprintf("\n\n[faithfulness %.2f | relevance %.2f | retrieval %.2f | latency %.2fs]",
			m.Faithfulness, m.AnswerRelevance, m.RetrievalScore, m.LatencySeconds)
	}
	return mcp.NewToolResultText(text), nil
}

func (t *MCPTools) SummarizeVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := req.RequireString("video_id")
	if err != nil || strings.TrimSpace(videoID) == "" {
		return mcp.NewToolResultError("video_id is required"), nil
	}

	summary, err := t.service.Summary(ctx, videoID, req.GetString("type", rag.SummaryShort))
	if err != nil {
		return mcp.NewToolResultError(rag.UserMessage(err)), nil
	}
	return mcp.NewToolResultText(summary), nil
}
