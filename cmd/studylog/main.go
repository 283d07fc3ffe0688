// studylog replays NDJSON event records from stdin into one collector session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/studylog/internal/client"
	"github.com/ashureev/studylog/internal/config"
	"github.com/ashureev/studylog/internal/localstore"
	"github.com/ashureev/studylog/internal/prompt"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appID := flag.String("app", "", "App id to open the session for (required)")
	appType := flag.String("type", "", "App type, e.g. quiz or survey (required)")
	serverURL := flag.String("server", cfg.ServerURL, "Collector base URL")
	statePath := flag.String("state", cfg.StatePath, "Path of the local state database")
	flag.Parse()

	if *appID == "" || *appType == "" {
		fmt.Fprintln(os.Stderr, "usage: studylog -app ID -type TYPE [-server URL] [-state PATH] < events.ndjson")
		os.Exit(2)
	}

	state, err := localstore.NewSQLite(*statePath)
	if err != nil {
		slog.Error("Failed to open local state", "path", *statePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := state.Close(); closeErr != nil {
			slog.Error("Failed to close local state", "error", closeErr)
		}
	}()

	prompter, closePrompter := subjectPrompter()
	defer closePrompter()

	c := client.New(*serverURL,
		client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		client.WithSubjectStore(state),
		client.WithPrompter(prompter),
		client.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, *appID, *appType, os.Stdin, logger); err != nil {
		slog.Error("studylog failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// subjectPrompter asks on the controlling terminal, since stdin carries
// the event stream. Without a terminal it falls back to STUDYLOG_SUBJECT_ID.
func subjectPrompter() (prompt.Prompter, func()) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err == nil {
		return prompt.Default(tty, tty), func() { _ = tty.Close() }
	}

	if id := os.Getenv("STUDYLOG_SUBJECT_ID"); id != "" {
		return prompt.Static(id), func() {}
	}
	return prompt.Func(func(context.Context, string) (string, error) {
		return "", errors.New("no terminal available for the subject prompt; set STUDYLOG_SUBJECT_ID")
	}), func() {}
}

// endTimeout bounds the finish request sent after ctx is cancelled.
const endTimeout = 5 * time.Second
