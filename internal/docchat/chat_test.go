package docchat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/docchat"
	"docchat/internal/testutil"
)

// sendAsync runs Ask in a goroutine and returns a channel carrying its result.
func sendAsync(h *harness, text string) <-chan *docchat.Exchange {
	done := make(chan *docchat.Exchange, 1)
	go func() {
		ex, _ := h.engine.Ask(context.Background(), text)
		done <- ex
	}()
	return done
}

func awaitStarted(t *testing.T, started <-chan docchat.AskRequest) docchat.AskRequest {
	t.Helper()
	select {
	case req := <-started:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("ask never reached the service")
		return docchat.AskRequest{}
	}
}

func awaitExchange(t *testing.T, done <-chan *docchat.Exchange) *docchat.Exchange {
	t.Helper()
	select {
	case ex := <-done:
		return ex
	case <-time.After(5 * time.Second):
		t.Fatal("ask never completed")
		return nil
	}
}

func TestChat_GeneralKnowledge(t *testing.T) {
	h := newHarness(t, docchat.Options{})

	ex, err := h.engine.Ask(context.Background(), "What is Go?")
	require.NoError(t, err)

	asks := h.service.Asks()
	require.Len(t, asks, 1)
	assert.Equal(t, "", asks[0].SessionID)
	assert.Equal(t, docchat.LanguageEnglish, asks[0].Language)
	assert.Equal(t, "What is Go?", asks[0].Text)

	require.NotNil(t, ex.Answer)
	assert.Equal(t, "Answer (General knowledge): What is Go?", ex.Answer.Content)
	assert.NoError(t, ex.Err)

	msgs := h.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, docchat.RoleUser, msgs[0].Role)
	assert.Equal(t, docchat.RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[0].SessionID)
	assert.Empty(t, msgs[1].SessionID)
}

func TestChat_AboutSelectedFile(t *testing.T) {
	h := newHarness(t, docchat.Options{})
	rec := h.seed(t, "handbook.txt", "Employees get 20 days of leave.")
	require.NoError(t, h.engine.Select(rec.SessionID))

	ex, err := h.engine.Ask(context.Background(), "How much leave?")
	require.NoError(t, err)

	assert.Equal(t, rec.SessionID, h.service.Asks()[0].SessionID)
	assert.Equal(t, "Answer (handbook.txt): How much leave?", ex.Answer.Content)
	require.Len(t, ex.Sources, 1)
	assert.Equal(t, "handbook.txt", ex.Sources[0].Source)
	assert.Equal(t, rec.SessionID, ex.Question.SessionID)
	assert.Equal(t, rec.SessionID, ex.Answer.SessionID)
}

func TestChat_Language(t *testing.T) {
	h := newHarness(t, docchat.Options{})
	_, err := h.engine.SetLanguage("ms")
	require.NoError(t, err)

	ex, err := h.engine.Ask(context.Background(), "Apa khabar?")
	require.NoError(t, err)

	assert.Equal(t, docchat.LanguageMalay, h.service.Asks()[0].Language)
	assert.Equal(t, "Jawapan (General knowledge): Apa khabar?", ex.Answer.Content)
}

func TestChat_RejectsBlankInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		h := newHarness(t, docchat.Options{})

		ex, err := h.engine.Ask(context.Background(), text)

		assert.Nil(t, ex)
		assert.True(t, docchat.IsValidation(err))
		assert.Empty(t, h.store.Messages())
		assert.Zero(t, h.service.Calls(testutil.OpAsk))
	}
}

func TestChat_FailureBecomesApology(t *testing.T) {
	for _, failure := range []error{
		&docchat.ServerError{Op: "ask", Status: 500, Message: "Internal Server Error"},
		&docchat.NetworkError{Op: "ask", Err: errors.New("connection reset")},
	} {
		t.Run(failure.Error(), func(t *testing.T) {
			h := newHarness(t, docchat.Options{})
			h.service.FailWith(testutil.OpAsk, failure)

			ex, err := h.engine.Ask(context.Background(), "hello?")
			require.NoError(t, err)
			assert.Equal(t, failure, ex.Err)

			msgs := h.store.Messages()
			require.Len(t, msgs, 2, "exactly the question and one apology")
			assert.Equal(t, "hello?", msgs[0].Content)
			assert.Equal(t, docchat.RoleAssistant, msgs[1].Role)
			assert.Equal(t, docchat.ApologyMessage, msgs[1].Content)
		})
	}
}

func TestChat_AskTimeout(t *testing.T) {
	h := newHarness(t, docchat.Options{Chat: docchat.ChatOptions{AskTimeout: 20 * time.Millisecond}})
	_, release := h.service.HoldAsks()
	t.Cleanup(release)

	ex, err := h.engine.Ask(context.Background(), "slow question")
	require.NoError(t, err)

	assert.True(t, docchat.IsNetwork(ex.Err))
	require.NotNil(t, ex.Answer)
	assert.Equal(t, docchat.ApologyMessage, ex.Answer.Content)
}

func TestChat_AnswerStaysBoundToSelectionAtAskTime(t *testing.T) {
	h := newHarness(t, docchat.Options{})
	a := h.seed(t, "a.txt", "alpha")
	b := h.seed(t, "b.txt", "beta")
	require.NoError(t, h.engine.Select(a.SessionID))
	started, release := h.service.HoldAsks()

	done := sendAsync(h, "which file?")
	req := awaitStarted(t, started)
	assert.Equal(t, a.SessionID, req.SessionID)

	// Switch without clearing the transcript while the request is in flight.
	h.store.SetSelectedFile(b.SessionID)
	release()
	ex := awaitExchange(t, done)

	require.NotNil(t, ex.Answer)
	assert.Equal(t, a.SessionID, ex.Answer.SessionID)
	assert.Equal(t, "Answer (a.txt): which file?", ex.Answer.Content)

	msgs := h.store.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, a.SessionID, m.SessionID)
	}
}

func TestChat_AnswerDiscardedWhenTranscriptCleared(t *testing.T) {
	tests := []struct {
		name  string
		clear func(h *harness, other docchat.FileRecord)
	}{
		{"select another file", func(h *harness, other docchat.FileRecord) { _ = h.engine.Select(other.SessionID) }},
		{"deselect", func(h *harness, _ docchat.FileRecord) { h.engine.Deselect() }},
		{"clear chat", func(h *harness, _ docchat.FileRecord) { h.engine.ClearChat() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, docchat.Options{})
			a := h.seed(t, "a.txt", "alpha")
			b := h.seed(t, "b.txt", "beta")
			require.NoError(t, h.engine.Select(a.SessionID))
			started, release := h.service.HoldAsks()

			done := sendAsync(h, "question")
			awaitStarted(t, started)
			tt.clear(h, b)
			release()
			ex := awaitExchange(t, done)

			assert.Nil(t, ex.Answer)
			assert.Empty(t, h.store.Messages(), "stale answer must not land in the new transcript")
		})
	}
}

func TestChat_Serialize(t *testing.T) {
	h := newHarness(t, docchat.Options{Chat: docchat.ChatOptions{Serialize: true}})
	started, release := h.service.HoldAsks()

	first := sendAsync(h, "first")
	awaitStarted(t, started)
	second := sendAsync(h, "second")

	assert.Never(t, func() bool {
		return len(h.service.Asks()) > 1
	}, 50*time.Millisecond, 5*time.Millisecond, "second question must wait for the first answer")

	release()
	awaitExchange(t, first)
	awaitExchange(t, second)

	assert.Equal(t, []string{
		"first",
		"Answer (General knowledge): first",
		"second",
		"Answer (General knowledge): second",
	}, contents(h.store.Messages()))
}
