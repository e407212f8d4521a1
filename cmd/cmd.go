package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/vidrag/internal/models"
	cfgPkg "github.com/xhad/vidrag/pkg/config"
	"github.com/xhad/vidrag/pkg/rag"
)

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// withSpinner runs fn while a spinner ticks on the terminal.
func withSpinner[T any](description string, fn func() (T, error)) (T, error) {
	spinner := getSpinner(description)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				spinner.Add(1)
			}
		}
	}()

	out, err := fn()
	close(done)
	spinner.Finish()
	fmt.Print("\r")
	return out, err
}

func chat(ctx context.Context, config *cfgPkg.Config, videoID string, logger *slog.Logger) error {
	app, err := build(ctx, config, logger, false)
	if err != nil {
		return err
	}
	defer app.Close()

	color.Blue("\nLoading transcript for %s\n", videoID)

	start := time.Now()
	chunks, err := withSpinner("📄 Fetching and indexing transcript...", func() (int, error) {
		return app.service.Prepare(ctx, videoID)
	})
	if err != nil {
		return fmt.Errorf("failed to prepare video: %s", rag.UserMessage(err))
	}
	color.Green("✓ Indexed %d chunks in %s\n", chunks, time.Since(start).Round(time.Millisecond))

	color.Cyan("\nAsk about the video (type 'summary', 'insights' or 'exit')")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		var (
			answer string
			m      *models.EvaluationResult
		)
		switch strings.ToLower(query) {
		case "exit", "quit":
			return nil
		case "summary":
			answer, err = withSpinner("🤖 Summarizing...", func() (string, error) {
				return app.service.Summary(ctx, videoID, rag.SummaryShort)
			})
		case "insights":
			answer, err = withSpinner("🤖 Finding insights...", func() (string, error) {
				return app.service.Insights(ctx, videoID)
			})
		default:
			var resp rag.AskResponse
			resp, err = withSpinner("🔍 Searching the transcript...", func() (rag.AskResponse, error) {
				return app.service.Ask(ctx, rag.AskRequest{VideoID: videoID, Question: query})
			})
			answer, m = resp.Answer, resp.Metrics
		}

		if err != nil {
			color.Red("Error: %s\n", rag.UserMessage(err))
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		assistantPrompt("Assistant: %s\n", answer)
		if m != nil {
			printMetrics(*m)
		}
	}

	return scanner.Err()
}

func printMetrics(m models.EvaluationResult) {
	line := fmt.Sprintf("faithfulness %.2f | relevance %.2f | coherence %.2f | retrieval %.2f | precision %.2f | mrr %.2f | latency %.2fs",
		m.Faithfulness, m.AnswerRelevance, m.Coherence, m.RetrievalScore, m.ContextPrecision, m.MRR, m.LatencySeconds)
	if m.Correctness != nil {
		line += fmt.Sprintf(" | correctness %.2f", *m.Correctness)
	}
	color.New(color.Faint).Println(line)
}
