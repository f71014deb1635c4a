// Package turn drives one user turn end to end: admission, context
// tracking, streaming the model reply into the transcript, and
// persistence.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medassist/med-ai/backend/internal/analysis/conversation"
	"github.com/medassist/med-ai/backend/internal/model/chat"
	"github.com/medassist/med-ai/backend/internal/ratelimit"
	"github.com/medassist/med-ai/backend/internal/service/ai"
	chatservice "github.com/medassist/med-ai/backend/internal/service/chat"
	"github.com/medassist/med-ai/backend/internal/service/contexttrack"
)

// State names the phases of one turn.
type State int

const (
	StateIdle State = iota
	StateAdmitting
	StateStreaming
	StateFinalizing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdmitting:
		return "admitting"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrCancelled ends a turn whose caller went away mid-stream. The
	// buffered partial content is kept in memory but never persisted.
	ErrCancelled = errors.New("turn cancelled")
	// ErrProducer wraps model/stream failures. The turn still persists,
	// with a fallback assistant message in place of the reply.
	ErrProducer = errors.New("model producer failed")
)

// FallbackReply is shown in the transcript when the producer fails.
const FallbackReply = "I'm sorry, I encountered an error while generating a response. Please try again later."

// DefaultTimeout bounds the streaming phase of a turn. The producer
// stream carries no timeout of its own.
const DefaultTimeout = 2 * time.Minute

// Config tunes orchestrator behavior.
type Config struct {
	// Timeout bounds one whole streaming phase; <= 0 applies DefaultTimeout.
	Timeout time.Duration
	// StrictPersistence makes a failed persistence write fail the turn
	// instead of degrading to an in-memory-only transcript.
	StrictPersistence bool
}

// Orchestrator coordinates the collaborators of a turn.
type Orchestrator struct {
	limiter  *ratelimit.Limiter
	tracker  *contexttrack.Tracker
	producer ai.Producer
	chats    *chatservice.Service
	cfg      Config
}

// NewOrchestrator wires a turn orchestrator.
func NewOrchestrator(limiter *ratelimit.Limiter, tracker *contexttrack.Tracker, producer ai.Producer, chats *chatservice.Service, cfg Config) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		limiter:  limiter,
		tracker:  tracker,
		producer: producer,
		chats:    chats,
		cfg:      cfg,
	}
}

// Input describes one turn request.
type Input struct {
	// Chat is the working transcript; the turn mutates it in place.
	Chat        *chat.Chat
	ClientID    string
	Message     string
	Attachments []chat.Attachment
	// OnDelta receives each streamed delta together with the full
	// buffered content so far. Optional.
	OnDelta func(delta, content string)
	// OnState observes state transitions. Optional.
	OnState func(State)
}

// Outcome reports how a turn ended.
type Outcome struct {
	State     State
	Chat      *chat.Chat
	Reply     chat.Message
	Persisted bool
}

// Run executes one turn. On a rate-limit denial the transcript and the
// store are left untouched and the returned error is a
// *ratelimit.DeniedError.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Outcome, error) {
	out := &Outcome{State: StateIdle, Chat: in.Chat}
	advance := func(s State) {
		out.State = s
		if in.OnState != nil {
			in.OnState(s)
		}
	}

	advance(StateAdmitting)
	if _, err := o.limiter.Admit(ctx, in.ClientID); err != nil {
		advance(StateFailed)
		return out, err
	}

	cht := in.Chat
	history := append([]chat.Message(nil), cht.Messages...)

	isFollowUp := conversation.IsFollowUp(in.Message, history)
	var tracked *chat.ConversationContext
	if cur, ok := o.tracker.Get(cht.ID); ok {
		tracked = &cur
	}

	userMsg := chat.Message{
		ID:          uuid.NewString(),
		Role:        chat.RoleUser,
		Content:     in.Message,
		Attachments: in.Attachments,
		Metadata: chat.Metadata{
			Timestamp:  time.Now().UTC(),
			IsFollowUp: isFollowUp,
		},
	}
	if isFollowUp && tracked != nil {
		userMsg.Metadata.Topic = tracked.CurrentTopic
	}
	cht.Messages = append(cht.Messages, userMsg)

	if conversation.ShouldUpdateContext(in.Message, tracked) {
		o.tracker.Set(cht.ID, chat.ConversationContext{
			CurrentTopic:  in.Message,
			LastMessageID: userMsg.ID,
		})
	}

	// The prompt leans on the previously established topic only when the
	// new message actually refers back to it.
	var promptContext *chat.ConversationContext
	if isFollowUp {
		promptContext = tracked
	}
	system := conversation.BuildSystemPrompt(in.Message, promptContext)

	advance(StateStreaming)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	var buffer strings.Builder
	assistantID := uuid.NewString()
	replyIdx := -1
	setReply := func(content string) {
		entry := chat.Message{
			ID:      assistantID,
			Role:    chat.RoleAssistant,
			Content: content,
			Metadata: chat.Metadata{
				Timestamp: time.Now().UTC(),
			},
		}
		if replyIdx < 0 {
			cht.Messages = append(cht.Messages, entry)
			replyIdx = len(cht.Messages) - 1
		} else {
			cht.Messages[replyIdx] = entry
		}
		out.Reply = entry
	}

	failProducer := func(cause error) (*Outcome, error) {
		slog.Error("model producer failed", "chat", cht.ID, "error", cause)
		setReply(FallbackReply)
		advance(StateFinalizing)
		return o.finalize(ctx, out, advance, fmt.Errorf("%w: %v", ErrProducer, cause))
	}

	// Producers that expose a streaming switch can answer in one shot
	// when delta streaming is turned off.
	if gen, ok := o.producer.(ai.Generator); ok && !gen.StreamingEnabled() {
		reply, genErr := gen.GenerateReply(sctx, system, history, in.Message)
		if genErr != nil {
			if ctx.Err() != nil {
				advance(StateFailed)
				return out, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
			}
			return failProducer(genErr)
		}
		setReply(reply.Content)
		if in.OnDelta != nil {
			in.OnDelta(reply.Content, reply.Content)
		}
		advance(StateFinalizing)
		return o.finalize(ctx, out, advance, nil)
	}

	stream, err := o.producer.StreamReply(sctx, system, history, in.Message)
	if err != nil {
		return failProducer(err)
	}
	defer stream.Close()

	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			if ctx.Err() != nil {
				// Caller went away: the buffered partial content stands as
				// final for this turn, nothing gets persisted.
				advance(StateFailed)
				return out, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx))
			}
			return failProducer(recvErr)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		buffer.WriteString(chunk.Content)
		setReply(buffer.String())
		if in.OnDelta != nil {
			in.OnDelta(chunk.Content, buffer.String())
		}
	}

	advance(StateFinalizing)
	return o.finalize(ctx, out, advance, nil)
}

// finalize consolidates the transcript and persists it. When terminal
// is non-nil the turn still persists but ends Failed with that error.
func (o *Orchestrator) finalize(ctx context.Context, out *Outcome, advance func(State), terminal error) (*Outcome, error) {
	cht := out.Chat
	cht.Messages = chatservice.Consolidate(cht.Messages)

	if err := o.chats.SaveChat(ctx, cht); err != nil {
		if o.cfg.StrictPersistence {
			advance(StateFailed)
			return out, err
		}
		chatservice.LogPersistFailure(cht.ID, err)
	} else {
		out.Persisted = true
	}

	if terminal != nil {
		advance(StateFailed)
		return out, terminal
	}

	advance(StateCompleted)
	slog.Info("turn completed", "chat", cht.ID, "messages", len(cht.Messages), "persisted", out.Persisted)
	return out, nil
}
