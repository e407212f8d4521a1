package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	cfgPkg "github.com/xhad/vidrag/pkg/config"
	"github.com/xhad/vidrag/pkg/store"
	"github.com/xhad/vidrag/server"
)

const version = "0.1.0"

type Flags struct {
	ConfigPath string
	BaseURL    string
	Provider   string
	Model      string
	Backend    string
	Port       int
	VideoID    string
	Verbose    bool
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	flags, err := parseFlags(cmd, os.Args[2:])
	if err != nil {
		log.Fatal(err)
	}

	config, err := loadConfig(flags)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = serve(ctx, config, newLogger(flags.Verbose, slog.LevelInfo))
	case "chat":
		err = chat(ctx, config, flags.VideoID, newLogger(flags.Verbose, slog.LevelWarn))
	case "mcp":
		err = runMCP(ctx, config, newLogger(flags.Verbose, slog.LevelWarn))
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: vidrag <serve|chat|mcp> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "  serve          run the HTTP and websocket API\n")
	fmt.Fprintf(os.Stderr, "  chat -v <id>   ask questions about one video in the terminal\n")
	fmt.Fprintf(os.Stderr, "  mcp            serve MCP tools over stdio\n")
}

func parseFlags(cmd string, args []string) (Flags, error) {
	var flags Flags

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&flags.BaseURL, "ollama-url", "", "Ollama server URL")
	fs.StringVar(&flags.Provider, "provider", "", "LLM provider (ollama or openai)")
	fs.StringVar(&flags.Model, "model", "", "LLM model to use")
	fs.StringVar(&flags.Backend, "backend", "", "Index backend (lexical, memory, pgvector, milvus)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Log at debug level")

	switch cmd {
	case "serve":
		fs.IntVar(&flags.Port, "port", 0, "HTTP port")
	case "chat":
		fs.StringVar(&flags.VideoID, "v", "", "YouTube video id")
	case "mcp":
	default:
		usage()
		return flags, fmt.Errorf("unknown command %q", cmd)
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if cmd == "chat" && strings.TrimSpace(flags.VideoID) == "" {
		return flags, fmt.Errorf("chat needs a video id: vidrag chat -v <id>")
	}
	return flags, nil
}

// loadConfig reads the config file and lets non-empty flags override it.
func loadConfig(flags Flags) (*cfgPkg.Config, error) {
	config, err := cfgPkg.LoadConfig(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flags.BaseURL != "" {
		config.LLM.BaseURL = flags.BaseURL
	}
	if flags.Provider != "" {
		config.LLM.Provider = flags.Provider
	}
	if flags.Model != "" {
		config.LLM.Model = flags.Model
	}
	if flags.Backend != "" && flags.Backend != config.Index.Backend {
		config.Index.Backend = flags.Backend
		// The cutoff default depends on the backend.
		score := store.DefaultMinScore(flags.Backend)
		config.Index.MinScore = &score
	}
	if flags.Port != 0 {
		config.Server.Port = flags.Port
	}

	if errs := config.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid config:\n  %s", strings.Join(msgs, "\n  "))
	}
	return config, nil
}

func newLogger(verbose bool, level slog.Level) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func serve(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger) error {
	app, err := build(ctx, config, logger, true)
	if err != nil {
		return err
	}
	defer app.Close()

	color.Cyan("vidrag %s listening on :%d (%s index, %s)", version, config.Server.Port, config.Index.Backend, config.LLM.Model)

	srv := server.New(server.Config{Port: config.Server.Port, Logger: logger}, app.service, app.manager)
	return srv.ListenAndServe(ctx)
}

func runMCP(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger) error {
	app, err := build(ctx, config, logger, false)
	if err != nil {
		return err
	}
	defer app.Close()

	return server.ServeMCP(app.service, version)
}
