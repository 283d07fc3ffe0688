package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ashureev/studylog/internal/client"
)

// sessionClient is the subset of *client.Client used by run.
type sessionClient interface {
	EnsureSessionStarted(ctx context.Context, sess *client.Session, appID, appType string) error
	LogEvent(ctx context.Context, sess *client.Session, ev client.Event) error
	EndSession(ctx context.Context, sess *client.Session)
}

// inputLine is one NDJSON record read from stdin.
type inputLine struct {
	EventType  string         `json:"event_type"`
	ItemID     string         `json:"item_id"`
	EventIndex *int           `json:"event_index"`
	Payload    map[string]any `json:"payload"`
}

// indexer assigns event indexes, continuing after any explicit index.
type indexer struct {
	next int
}

func (ix *indexer) assign(explicit *int) int {
	if explicit != nil {
		ix.next = *explicit + 1
		return *explicit
	}
	i := ix.next
	ix.next++
	return i
}

func parseLine(line string) (inputLine, error) {
	var in inputLine
	if err := json.Unmarshal([]byte(line), &in); err != nil {
		return in, fmt.Errorf("decode event line: %w", err)
	}
	if in.EventType == "" {
		return in, errors.New("event_type is required")
	}
	return in, nil
}

// run opens a session, forwards every line from r and ends the session
// on EOF or when ctx is cancelled.
func run(ctx context.Context, c sessionClient, appID, appType string, r io.Reader, logger *slog.Logger) error {
	var sess client.Session
	if err := c.EnsureSessionStarted(ctx, &sess, appID, appType); err != nil {
		return err
	}
	logger.Info("Session started", "session_id", sess.ID, "subject_id", sess.SubjectID)

	defer func() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
		defer cancel()
		c.EndSession(endCtx, &sess)
		logger.Info("Session ended", "session_id", sess.ID)
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var ix indexer
	lineNo := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Interrupted, ending session")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read events: %w", err)
					}
				default:
				}
				return nil
			}
			lineNo++
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			in, err := parseLine(line)
			if err != nil {
				logger.Warn("Skipping invalid event line", "line", lineNo, "error", err)
				continue
			}
			ev := client.Event{
				EventType:  in.EventType,
				ItemID:     in.ItemID,
				EventIndex: ix.assign(in.EventIndex),
				Payload:    in.Payload,
			}
			if err := c.LogEvent(ctx, &sess, ev); err != nil {
				logger.Warn("Failed to log event", "line", lineNo, "error", err)
			}
		}
	}
}
