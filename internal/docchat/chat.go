package docchat

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ApologyMessage is the assistant reply recorded when a question could not be answered.
const ApologyMessage = "Sorry, an error occurred. Please try again."

// Exchange is the result of one question.
type Exchange struct {
	Question ChatMessage
	// Answer is nil when the reply was discarded because the transcript was cleared
	// while the request was in flight.
	Answer  *ChatMessage
	Sources []Source
	// Err is the remote failure behind an apology answer, if any.
	Err error
}

// ChatOptions tunes the chat orchestrator.
type ChatOptions struct {
	// AskTimeout bounds each remote call. Zero leaves ctx as is.
	AskTimeout time.Duration
	// Serialize allows only one question in flight, so answers append in issuance order.
	Serialize bool
}

// Chat drives the ask lifecycle: optimistic user message, request, then an assistant
// message or an apology. Both messages are bound to the selection at the time of asking.
type Chat struct {
	store   *Store
	service RemoteService
	logger  Logger
	opts    ChatOptions
	mu      sync.Mutex
}

// NewChat creates a Chat orchestrator.
func NewChat(store *Store, service RemoteService, logger Logger, opts ChatOptions) *Chat {
	return &Chat{
		store:   store,
		service: service,
		logger:  logger,
		opts:    opts,
	}
}

// Send asks text. Blank input is rejected with a ValidationError and changes nothing.
// Remote failures never surface as an error from Send: they become an apology message
// and are reported in Exchange.Err.
func (c *Chat) Send(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Reason: "question is empty"}
	}

	if c.opts.Serialize {
		c.mu.Lock()
		defer c.mu.Unlock()
	}

	question, lang, epoch := c.store.beginExchange(text)
	sessionID := question.SessionID
	c.logger.Debug("asking", "session_id", sessionID, "language", string(lang))

	askCtx := ctx
	if c.opts.AskTimeout > 0 {
		var cancel context.CancelFunc
		askCtx, cancel = context.WithTimeout(ctx, c.opts.AskTimeout)
		defer cancel()
	}

	ex := &Exchange{Question: question}
	reply := NewMessage{Role: RoleAssistant, SessionID: sessionID}

	resp, err := c.service.Ask(askCtx, AskRequest{Text: text, SessionID: sessionID, Language: lang})
	if err != nil {
		c.logger.Error("ask failed", "session_id", sessionID, "error", err)
		ex.Err = err
		reply.Content = ApologyMessage
	} else {
		reply.Content = resp.Answer
		ex.Sources = resp.Sources
	}

	answer, ok := c.store.appendIfEpoch(epoch, reply)
	if !ok {
		c.logger.Info("discarding answer for cleared transcript", "session_id", sessionID)
		return ex, nil
	}
	ex.Answer = &answer
	return ex, nil
}
