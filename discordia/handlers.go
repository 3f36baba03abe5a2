package discordia

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/lmittmann/tint"
)

var (
	// dailyChannelNamePattern matches YYYY-MM-DD channel names generated
	// by DailyLogPattern.
	dailyChannelNamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// weekDayChannelNamePattern matches WW-DD channel names generated by
	// WeekDayPattern (day 01-07).
	weekDayChannelNamePattern = regexp.MustCompile(`^\d{2}-0[1-7]$`)
)

// MessageContext carries everything a handler needs to act on one inbound
// message, including a store handle for loading conversation history.
type MessageContext struct {
	Message Message
	Author  User
	Channel Channel

	store StateStore
}

// NewMessageContext builds a context for one inbound message.
func NewMessageContext(
	store StateStore,
	message Message,
	author User,
	channel Channel,
) *MessageContext {
	return &MessageContext{
		Message: message,
		Author:  author,
		Channel: channel,
		store:   store,
	}
}

// History loads the most recent `limit` messages from this channel,
// oldest-first.
func (c *MessageContext) History(limit int) []Message {
	return c.store.GetMessages(c.Channel.ID, limit)
}

func (c *MessageContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("message_id", c.Message.ID),
		slog.String("channel", c.Channel.Name),
		slog.String("author", c.Author.Username),
	)
}

// MessageHandler processes inbound messages. Handlers are stateless with
// respect to the chain; any configuration they need is injected at
// construction.
type MessageHandler interface {
	// Name identifies the handler in logs
	Name() string

	// CanHandle reports whether this handler wants the message
	CanHandle(ctx context.Context, mc *MessageContext) bool

	// Handle produces a reply for the message. An empty reply with a nil
	// error means the message was handled silently.
	Handle(ctx context.Context, mc *MessageContext) (string, error)
}

// HandlerChain routes each inbound message through an ordered list of
// handlers. The first handler whose CanHandle returns true gets the
// message, and no later handler runs - at most one handler executes per
// message. A handler error is logged and consumes the message without a
// reply.
type HandlerChain struct {
	handlers []MessageHandler
	logger   *slog.Logger
}

func NewHandlerChain(
	logger *slog.Logger,
	handlers ...MessageHandler,
) *HandlerChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandlerChain{
		handlers: handlers,
		logger:   logger.With(loggerNameKey, "handler_chain"),
	}
}

// Route finds the first matching handler and returns its reply. An empty
// reply means no response should be sent - either no handler matched, the
// matching handler chose silence, or it failed.
func (h *HandlerChain) Route(ctx context.Context, mc *MessageContext) string {
	for _, handler := range h.handlers {
		if !handler.CanHandle(ctx, mc) {
			continue
		}
		reply, err := handler.Handle(ctx, mc)
		if err != nil {
			h.logger.Error(
				"handler failed",
				tint.Err(err),
				"handler", handler.Name(),
				"context", mc,
			)
			return ""
		}
		h.logger.Debug(
			"handler processed message",
			"handler", handler.Name(),
			"context", mc,
		)
		return reply
	}
	return ""
}

// LoggingHandler matches every message and replies to none - it just logs
// what it saw. Useful as the last handler in a chain.
type LoggingHandler struct {
	Logger *slog.Logger
}

func (LoggingHandler) Name() string {
	return "logging"
}

func (LoggingHandler) CanHandle(_ context.Context, _ *MessageContext) bool {
	return true
}

func (l LoggingHandler) Handle(
	_ context.Context,
	mc *MessageContext,
) (string, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(
		"message seen",
		"channel", mc.Channel.Name,
		"author", mc.Author.Username,
		"content", mc.Message.Content,
	)
	return "", nil
}

// LLMHandler generates replies in daily-log channels (YYYY-MM-DD names)
// using the configured LLM client, with recent channel history as
// conversation context.
type LLMHandler struct {
	client       LLMClient
	systemPrompt string
	contextLimit int
	logger       *slog.Logger
}

func NewLLMHandler(
	client LLMClient,
	systemPrompt string,
	contextLimit int,
	logger *slog.Logger,
) *LLMHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMHandler{
		client:       client,
		systemPrompt: systemPrompt,
		contextLimit: contextLimit,
		logger:       logger.With(loggerNameKey, "llm_handler"),
	}
}

func (*LLMHandler) Name() string {
	return "llm"
}

func (*LLMHandler) CanHandle(_ context.Context, mc *MessageContext) bool {
	return dailyChannelNamePattern.MatchString(mc.Channel.Name)
}

func (h *LLMHandler) Handle(
	ctx context.Context,
	mc *MessageContext,
) (string, error) {
	history := mc.History(h.contextLimit)
	reply, err := h.client.GenerateResponse(ctx, history, h.systemPrompt)
	if err != nil {
		return "", fmt.Errorf("generating reply for #%s: %w", mc.Channel.Name, err)
	}
	h.logger.Info(
		"generated reply",
		"channel", mc.Channel.Name,
		"chars", len(reply),
	)
	return reply, nil
}

// WeekDayHandler generates replies in WW-DD week-day log channels, using
// the same LLM capability as LLMHandler but matched to WeekDayPattern
// output.
type WeekDayHandler struct {
	client       LLMClient
	systemPrompt string
	contextLimit int
	logger       *slog.Logger
}

func NewWeekDayHandler(
	client LLMClient,
	systemPrompt string,
	contextLimit int,
	logger *slog.Logger,
) *WeekDayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeekDayHandler{
		client:       client,
		systemPrompt: systemPrompt,
		contextLimit: contextLimit,
		logger:       logger.With(loggerNameKey, "weekday_handler"),
	}
}

func (*WeekDayHandler) Name() string {
	return "weekday"
}

func (*WeekDayHandler) CanHandle(_ context.Context, mc *MessageContext) bool {
	return weekDayChannelNamePattern.MatchString(mc.Channel.Name)
}

func (h *WeekDayHandler) Handle(
	ctx context.Context,
	mc *MessageContext,
) (string, error) {
	history := mc.History(h.contextLimit)
	reply, err := h.client.GenerateResponse(ctx, history, h.systemPrompt)
	if err != nil {
		return "", fmt.Errorf("generating reply for #%s: %w", mc.Channel.Name, err)
	}
	h.logger.Info(
		"generated reply",
		"channel", mc.Channel.Name,
		"chars", len(reply),
	)
	return reply, nil
}
