package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	analysis "github.com/anasify/dashboard/backend/internal/analysis/handoff"
	"github.com/anasify/dashboard/backend/internal/model/chat"
	"github.com/anasify/dashboard/backend/internal/model/chatbot"
	"github.com/anasify/dashboard/backend/internal/service/ai"
)

var (
	ErrExchangeTimeout = errors.New("exchange timed out")
	ErrUnavailable     = errors.New("chat model is not configured")
)

// DefaultMaxDuration bounds one exchange when no limit is configured.
const DefaultMaxDuration = 30 * time.Second

// Generator produces assistant replies for a conversation.
type Generator interface {
	StreamingEnabled() bool
	GenerateReply(ctx context.Context, in ai.Input) (*schema.Message, error)
	StreamReply(ctx context.Context, in ai.Input) (*schema.StreamReader[*schema.Message], error)
}

// Assessor decides whether a finished reply hands the user over to a human.
type Assessor interface {
	Assess(ctx context.Context, history []chat.Message, reply string) chat.Handoff
}

// EmitFunc writes one event to the transport. A returned error aborts the exchange.
type EmitFunc func(chat.Event) error

// Options tunes a Service.
type Options struct {
	MaxDuration time.Duration
}

// Service runs chat exchanges: validation, prompt context, streaming and handoff assessment.
type Service struct {
	gen         Generator
	bots        chatbot.Store
	assessor    Assessor
	maxDuration time.Duration
	logger      *zap.Logger
}

// NewService wires the exchange runner. gen may be nil, in which case Prepare reports ErrUnavailable.
func NewService(gen Generator, bots chatbot.Store, assessor Assessor, opts Options, logger *zap.Logger) *Service {
	if assessor == nil {
		assessor = heuristicAssessor{}
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gen:         gen,
		bots:        bots,
		assessor:    assessor,
		maxDuration: opts.MaxDuration,
		logger:      logger,
	}
}

// ExchangeRequest is one submitted conversation, optionally scoped to a chatbot.
type ExchangeRequest struct {
	BotID    string
	Messages []chat.Message
}

// Exchange is a validated request ready to run.
type Exchange struct {
	ID    string
	BotID string
	input ai.Input
}

// Available reports whether a chat model is wired.
func (s *Service) Available() bool {
	return s.gen != nil
}

// MaxDuration returns the per-exchange deadline.
func (s *Service) MaxDuration() time.Duration {
	return s.maxDuration
}

// Prepare validates the request and loads the chatbot context. Nothing is streamed yet,
// so errors here can still be reported as plain HTTP errors.
func (s *Service) Prepare(ctx context.Context, req ExchangeRequest) (*Exchange, error) {
	if s.gen == nil {
		return nil, ErrUnavailable
	}
	if err := chat.ValidateSequence(req.Messages); err != nil {
		return nil, err
	}

	in := ai.Input{Messages: append([]chat.Message(nil), req.Messages...)}
	if req.BotID != "" {
		if s.bots == nil {
			return nil, chatbot.ErrNotFound
		}
		bot, err := s.bots.FindByID(ctx, req.BotID)
		if err != nil {
			return nil, err
		}
		dataset, err := s.bots.LoadTraining(ctx, req.BotID)
		if err != nil {
			return nil, fmt.Errorf("load training for %s: %w", req.BotID, err)
		}
		in.Bot = &bot
		in.Dataset = &dataset
	}

	return &Exchange{
		ID:    uuid.NewString(),
		BotID: req.BotID,
		input: in,
	}, nil
}

// Run streams one reply through emit and returns the full reply text.
// start is always emitted first; the exchange then terminates with either end or error.
func (s *Service) Run(ctx context.Context, ex *Exchange, emit EmitFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.maxDuration)
	defer cancel()

	if err := emit(chat.Event{Event: chat.EventStart, MessageID: ex.ID}); err != nil {
		return "", err
	}

	var (
		reply string
		err   error
	)
	if s.gen.StreamingEnabled() {
		reply, err = s.stream(ctx, ex, emit)
	} else {
		reply, err = s.generate(ctx, ex, emit)
	}
	if err != nil {
		s.fail(ex, emit, err)
		return "", err
	}

	if err := emit(chat.Event{Event: chat.EventMessage, MessageID: ex.ID, Content: reply}); err != nil {
		return "", err
	}

	handoff := s.assess(ctx, ex, reply)
	if err := emit(chat.Event{Event: chat.EventHandoff, MessageID: ex.ID, Handoff: &handoff}); err != nil {
		return "", err
	}

	if err := emit(chat.Event{Event: chat.EventEnd, MessageID: ex.ID, Finished: true}); err != nil {
		return "", err
	}

	if ex.BotID != "" && s.bots != nil {
		// 使用独立的 context，避免交换结束时的取消影响计数写入。
		if err := s.bots.IncrementMessages(context.WithoutCancel(ctx), ex.BotID); err != nil {
			s.logger.Warn("[chat] failed to count message", zap.String("bot", ex.BotID), zap.Error(err))
		}
	}

	s.logger.Info("[chat] exchange completed",
		zap.String("exchange", ex.ID),
		zap.String("bot", ex.BotID),
		zap.Int("history", len(ex.input.Messages)),
		zap.Int("length", len(reply)),
		zap.Bool("handoff", handoff.Suggested),
	)
	return reply, nil
}

type streamItem struct {
	chunk *schema.Message
	err   error
}

// stream 由生产者 goroutine 读取模型输出，消费者在截止时间到达时直接放弃。
func (s *Service) stream(ctx context.Context, ex *Exchange, emit EmitFunc) (string, error) {
	items := make(chan streamItem)

	go func() {
		defer close(items)

		send := func(item streamItem) bool {
			select {
			case items <- item:
				return true
			case <-ctx.Done():
				return false
			}
		}

		stream, err := s.gen.StreamReply(ctx, ex.input)
		if err != nil {
			send(streamItem{err: err})
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(streamItem{err: err})
				return
			}
			if !send(streamItem{chunk: chunk}) {
				return
			}
		}
	}()

	var builder strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", contextErr(ctx)
		case item, ok := <-items:
			if !ok {
				return builder.String(), nil
			}
			if item.err != nil {
				if ctx.Err() != nil {
					return "", contextErr(ctx)
				}
				return "", fmt.Errorf("AI generation failed: %w", item.err)
			}
			if item.chunk == nil || item.chunk.Content == "" {
				continue
			}
			builder.WriteString(item.chunk.Content)
			if err := emit(chat.Event{Event: chat.EventDelta, MessageID: ex.ID, Content: item.chunk.Content}); err != nil {
				return "", err
			}
		}
	}
}

// generate 调用一次模型，并把完整回复作为单个 delta 发送。
func (s *Service) generate(ctx context.Context, ex *Exchange, emit EmitFunc) (string, error) {
	done := make(chan streamItem, 1)
	go func() {
		msg, err := s.gen.GenerateReply(ctx, ex.input)
		done <- streamItem{chunk: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", contextErr(ctx)
	case item := <-done:
		if item.err != nil {
			if ctx.Err() != nil {
				return "", contextErr(ctx)
			}
			return "", fmt.Errorf("AI generation failed: %w", item.err)
		}
		if item.chunk == nil || item.chunk.Content == "" {
			return "", nil
		}
		if err := emit(chat.Event{Event: chat.EventDelta, MessageID: ex.ID, Content: item.chunk.Content}); err != nil {
			return "", err
		}
		return item.chunk.Content, nil
	}
}

func (s *Service) fail(ex *Exchange, emit EmitFunc, err error) {
	message := err.Error()
	if errors.Is(err, ErrExchangeTimeout) {
		message = ErrExchangeTimeout.Error()
		s.logger.Warn("[chat] exchange timed out", zap.String("exchange", ex.ID), zap.Duration("limit", s.maxDuration))
	} else {
		s.logger.Error("[chat] exchange failed", zap.String("exchange", ex.ID), zap.Error(err))
	}

	if emitErr := emit(chat.Event{Event: chat.EventError, MessageID: ex.ID, Error: message}); emitErr != nil {
		s.logger.Debug("[chat] could not deliver error event", zap.Error(emitErr))
	}
}

func contextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrExchangeTimeout
	}
	return ctx.Err()
}

// assess 在截止时间内等待评估结果，超时后退回启发式判断。
func (s *Service) assess(ctx context.Context, ex *Exchange, reply string) chat.Handoff {
	result := make(chan chat.Handoff, 1)
	go func() {
		result <- s.assessor.Assess(ctx, ex.input.Messages, reply)
	}()

	select {
	case handoff := <-result:
		return handoff
	case <-ctx.Done():
		s.logger.Warn("[chat] handoff assessment abandoned", zap.String("exchange", ex.ID), zap.Error(ctx.Err()))
		handoff := heuristicAssessor{}.Assess(ctx, ex.input.Messages, reply)
		handoff.Reason = "deadline"
		return handoff
	}
}

type heuristicAssessor struct{}

func (heuristicAssessor) Assess(_ context.Context, history []chat.Message, reply string) chat.Handoff {
	decision := analysis.Analyze(chat.LastUserMessage(history), reply)
	return chat.Handoff{
		Label:      string(decision.Label),
		Suggested:  decision.Suggested(),
		Confidence: 0.5,
		Reason:     "heuristic",
	}
}
