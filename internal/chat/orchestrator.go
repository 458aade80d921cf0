package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatrelay/internal/agent"
	"chatrelay/internal/models"
	"chatrelay/internal/store"
)

// Orchestrator runs conversation turns against the agent and persists
// completed turns through the store.
type Orchestrator struct {
	store    *store.Store
	runner   agent.Runner
	debounce time.Duration
	fetcher  *pageFetcher
	webTTL   time.Duration
}

func New(st *store.Store, runner agent.Runner, debounce, webTTL time.Duration) *Orchestrator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if webTTL <= 0 {
		webTTL = store.DefaultWebCacheTTL
	}
	return &Orchestrator{
		store:    st,
		runner:   runner,
		debounce: debounce,
		fetcher:  newPageFetcher(),
		webTTL:   webTTL,
	}
}

// StreamTurn executes one streaming turn for the session. The sink sees a
// start frame, debounced content frames carrying the cumulative response
// text, and exactly one terminal frame (end on success, error on failure).
// The commit runs on a context detached from the request so a client that
// disconnects after the agent finished still gets its turn persisted.
func (o *Orchestrator) StreamTurn(ctx context.Context, sessionID, prompt string, sink Sink) error {
	fw := &frameWriter{sink: sink}
	fw.emit(startFrame(time.Now()))

	history, err := o.store.Messages(ctx, sessionID)
	if err != nil {
		fw.emit(errorFrame("failed to load session history"))
		return fmt.Errorf("load history for session %s: %w", sessionID, err)
	}

	deb := newDebouncer(o.debounce, func(text string) {
		fw.emit(contentFrame(text))
	})
	result, err := o.runner.RunStream(ctx, prompt, history, func(snapshot string) error {
		deb.observe(snapshot)
		return nil
	})
	if err != nil {
		fw.emit(errorFrame("agent request failed"))
		return fmt.Errorf("agent stream for session %s: %w", sessionID, err)
	}
	deb.flush()

	if err := o.commit(context.WithoutCancel(ctx), sessionID, prompt, result); err != nil {
		fw.emit(errorFrame("failed to persist turn"))
		return err
	}

	fw.emit(endFrame(time.Now()))
	if fw.err != nil {
		log.Printf("chat stream for session %s: client went away: %v", sessionID, fw.err)
	}
	return nil
}

// Turn executes one non-streaming turn and returns the full response once
// the agent completes. Same replay and commit sequence as StreamTurn.
func (o *Orchestrator) Turn(ctx context.Context, sessionID, prompt string) (string, error) {
	history, err := o.store.Messages(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load history for session %s: %w", sessionID, err)
	}

	result, err := o.runner.Run(ctx, prompt, history)
	if err != nil {
		return "", fmt.Errorf("agent run for session %s: %w", sessionID, err)
	}

	if err := o.commit(context.WithoutCancel(ctx), sessionID, prompt, result); err != nil {
		return "", err
	}
	return result.Output, nil
}

// commit persists a finished turn in a fixed order: raw journal first, then
// the user and assistant display rows, then the session timestamp. The
// writes are not wrapped in a transaction; a failure partway leaves the
// journal (the replay source of truth) ahead of the display log.
func (o *Orchestrator) commit(ctx context.Context, sessionID, prompt string, result *agent.TurnResult) error {
	if err := o.store.AppendMessages(ctx, sessionID, result.NewMessages); err != nil {
		return fmt.Errorf("append journal for session %s: %w", sessionID, err)
	}
	if err := o.store.AddChatMessage(ctx, sessionID, models.RoleUser, prompt, models.ContentText, ""); err != nil {
		return fmt.Errorf("append user row for session %s: %w", sessionID, err)
	}
	if err := o.store.AddChatMessage(ctx, sessionID, models.RoleAssistant, result.Output, models.ContentText, ""); err != nil {
		return fmt.Errorf("append assistant row for session %s: %w", sessionID, err)
	}
	if err := o.store.TouchSession(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session %s: %w", sessionID, err)
	}
	return nil
}
