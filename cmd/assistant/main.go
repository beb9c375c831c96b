// Package main contains the entrypoint for the interactive crisis donation
// assistant. It wires the conversation session, the organization cache, and
// the background refresh scheduler into a terminal chat loop.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/reliefmatch/reliefmatch/internal/chat"
	"github.com/reliefmatch/reliefmatch/internal/config"
	"github.com/reliefmatch/reliefmatch/internal/database"
	"github.com/reliefmatch/reliefmatch/internal/logger"
	"github.com/reliefmatch/reliefmatch/internal/orgs"
	"github.com/reliefmatch/reliefmatch/internal/reasoning"
	"github.com/reliefmatch/reliefmatch/internal/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger,
// store, reasoning client, organization service, scheduler, session),
// handles graceful shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	contextPath := flag.String("context", "", "Path to crisis context JSON file")
	webSearch := flag.Bool("web-search", false, "Enable web search on assistant replies")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	sessionCtx, err := loadCrisisContext(*contextPath)
	if err != nil {
		log.Error("Failed to load crisis context", "path", *contextPath, "error", err)
		return 1
	}

	var sessionOpts []chat.Option
	if cfg.Database.Path != "" {
		db, err := database.NewDB(cfg.Database.Path)
		if err != nil {
			log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
			return 1
		}
		defer database.CloseDB(db)
		sessionOpts = append(sessionOpts, chat.WithTranscriptStore(database.NewStore(db, log)))
	}

	client, err := newReasoningClient(ctx, cfg.Reasoning, log)
	if err != nil {
		log.Error("Failed to initialize reasoning client", "provider", cfg.Reasoning.Provider, "error", err)
		return 1
	}

	orgService := orgs.NewService(cfg.Orgs, log)

	sched, err := scheduler.NewScheduler(log, &cfg.Scheduler, orgService)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	session := chat.NewSession(log, client, sessionCtx, *webSearch, sessionOpts...)

	log.Info("Starting assistant...", "session_id", session.ID())
	runErr := runLoop(ctx, log, session, orgService, sched)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Assistant stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Assistant stopped gracefully.")
	return 0
}

func newReasoningClient(ctx context.Context, cfg config.ReasoningConfig, log *slog.Logger) (reasoning.Client, error) {
	switch cfg.Provider {
	case "http":
		return reasoning.NewHTTPClient(cfg, log)
	default:
		return reasoning.NewGeminiClient(ctx, cfg, log)
	}
}

// runLoop runs the scheduler and the interactive chat loop until the context
// is cancelled or stdin is exhausted.
func runLoop(ctx context.Context, log *slog.Logger, session *chat.Session, orgService *orgs.Service, sched *scheduler.Scheduler) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		if err := sched.Stop(); err != nil {
			log.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		chatLoop(gCtx, session, orgService)
		return context.Canceled
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func chatLoop(ctx context.Context, session *chat.Session, orgService *orgs.Service) {
	printMessage(session.Greeting())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case strings.HasPrefix(line, "/orgs"):
			term := strings.TrimSpace(strings.TrimPrefix(line, "/orgs"))
			printCharities(orgService.Fetch(ctx, term), orgService.LastError())
		case strings.HasPrefix(line, "/refresh"):
			term := strings.TrimSpace(strings.TrimPrefix(line, "/refresh"))
			printCharities(orgService.Refetch(ctx, term), orgService.LastError())
		case line == "/search on":
			session.SetWebSearchEnabled(true)
			fmt.Println("Web search enabled.")
		case line == "/search off":
			session.SetWebSearchEnabled(false)
			fmt.Println("Web search disabled.")
		default:
			printMessage(session.ProcessMessage(ctx, line))
		}
	}
}

func printMessage(msg *chat.Message) {
	fmt.Printf("\n%s\n", msg.Content)
	for _, source := range msg.Sources {
		fmt.Printf("  [source] %s: %s\n", source.Title, source.URL)
	}
	if len(msg.QuickReplies) > 0 {
		fmt.Printf("  (suggested: %s)\n", strings.Join(msg.QuickReplies, " | "))
	}
	fmt.Println()
}

func printCharities(charities []orgs.Charity, errMsg string) {
	if errMsg != "" {
		fmt.Printf("\nLive search unavailable (%s); showing vetted fallback organizations.\n", errMsg)
	}
	fmt.Println()
	for _, c := range charities {
		fmt.Printf("- %s (trust %.0f): %s\n", c.Name, c.TrustScore, c.Description)
	}
	fmt.Println()
}

// crisisContextFile is the on-disk shape of the -context file. It mirrors
// the context payload the web front-end hands to the session.
type crisisContextFile struct {
	Classification   reasoning.Classification   `json:"classification"`
	MatchedCharities []reasoning.MatchedCharity `json:"matchedCharities"`
	ArticleTitle     string                     `json:"articleTitle"`
	ArticleText      string                     `json:"articleText"`
	ArticleSummary   string                     `json:"articleSummary"`
	ArticleURL       string                     `json:"articleUrl"`
}

func loadCrisisContext(path string) (chat.Context, error) {
	if path == "" {
		return chat.Context{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return chat.Context{}, fmt.Errorf("failed to read context file: %w", err)
	}

	var file crisisContextFile
	if err := json.Unmarshal(data, &file); err != nil {
		return chat.Context{}, fmt.Errorf("failed to parse context file: %w", err)
	}

	return chat.Context{
		Classification:   file.Classification,
		MatchedCharities: file.MatchedCharities,
		ArticleTitle:     file.ArticleTitle,
		ArticleText:      file.ArticleText,
		ArticleSummary:   file.ArticleSummary,
		ArticleURL:       file.ArticleURL,
	}, nil
}
