package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/pixie/internal/activity"
	"github.com/normanking/pixie/internal/ledger"
	"github.com/normanking/pixie/internal/mood"
	"github.com/normanking/pixie/internal/vision"
)

type fakeGenerator struct {
	reply string
	err   error
	last  Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	g.last = req
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("no deadline")
	}
	return g.reply, g.err
}

func newCompanion(g Generator) *Companion {
	return New(g, "Pixie", time.Second, zerolog.Nop())
}

func TestUnavailable(t *testing.T) {
	c := newCompanion(nil)
	assert.False(t, c.Available())

	_, err := c.ChatResponse(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.SpontaneousComment(context.Background(), nil, "", mood.Helpful)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChatResponse(t *testing.T) {
	g := &fakeGenerator{reply: "  Sure thing!  "}
	c := newCompanion(g)

	reply, err := c.ChatResponse(context.Background(), "can you help?")
	require.NoError(t, err)
	assert.Equal(t, "Sure thing!", reply)
	assert.Contains(t, g.last.Prompt, "User message: can you help?")
	assert.Nil(t, g.last.Image)

	g.reply = ""
	reply, err = c.ChatResponse(context.Background(), "hm")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
}

func TestConversationalResponse_History(t *testing.T) {
	g := &fakeGenerator{reply: "ok"}
	c := newCompanion(g)

	var history []ledger.Entry
	for i := 0; i < 8; i++ {
		speaker := ledger.SpeakerUser
		if i%2 == 1 {
			speaker = ledger.SpeakerPet
		}
		history = append(history, ledger.Entry{Speaker: speaker, Text: fmt.Sprintf("msg-%d", i)})
	}

	_, err := c.ConversationalResponse(context.Background(), "and now?", history, "main.go | code (vscode)", nil)
	require.NoError(t, err)

	p := g.last.Prompt
	for i := 0; i < 3; i++ {
		assert.NotContains(t, p, fmt.Sprintf("msg-%d", i))
	}
	for i := 3; i < 8; i++ {
		assert.Contains(t, p, fmt.Sprintf("msg-%d", i))
	}
	assert.Contains(t, p, "Pixie: msg-7")
	assert.Contains(t, p, "User: msg-6")
	assert.Contains(t, p, "helpful, friendly, curious")
	assert.Contains(t, p, "main.go | code (vscode)")
	assert.Contains(t, p, "**User says:** and now?")
}

func TestConversationalResponse_Traits(t *testing.T) {
	g := &fakeGenerator{reply: "ok"}
	_, err := newCompanion(g).ConversationalResponse(context.Background(), "x", nil, "", mood.Sleepy.Traits())
	require.NoError(t, err)
	assert.Contains(t, g.last.Prompt, strings.Join(mood.Sleepy.Traits(), ", "))
	assert.NotContains(t, g.last.Prompt, "Recent conversation")
}

func TestReactToActivity(t *testing.T) {
	g := &fakeGenerator{reply: "Nice work!"}
	c := newCompanion(g)

	reply, err := c.ReactToActivity(context.Background(), activity.Success, "tests passed | kitty (terminal)")
	require.NoError(t, err)
	assert.Equal(t, "Nice work!", reply)
	assert.Contains(t, g.last.Prompt, "Celebrate")
	assert.Contains(t, g.last.Prompt, "tests passed")

	g.reply = ""
	reply, err = c.ReactToActivity(context.Background(), activity.General, "")
	require.NoError(t, err)
	assert.Equal(t, "I'm here with you! 🐾", reply)
}

func TestSpontaneousComment(t *testing.T) {
	shot := &vision.Frame{Data: []byte{1, 2, 3}, Format: "png"}

	for _, skip := range []string{"SKIP", "skip", " SKIP. ", "\"SKIP\"", ""} {
		g := &fakeGenerator{reply: skip}
		reply, err := newCompanion(g).SpontaneousComment(context.Background(), shot, "", mood.Curious)
		require.NoError(t, err)
		assert.Empty(t, reply, "reply %q", skip)
	}

	g := &fakeGenerator{reply: "Ooh, a new test file?"}
	reply, err := newCompanion(g).SpontaneousComment(context.Background(), shot, "tests.go", mood.Playful)
	require.NoError(t, err)
	assert.Equal(t, "Ooh, a new test file?", reply)
	assert.Same(t, shot, g.last.Image)
	assert.Contains(t, g.last.Prompt, moodPrompts[mood.Playful])
	assert.Contains(t, g.last.Prompt, "tests.go")

	_, err = newCompanion(g).SpontaneousComment(context.Background(), nil, "", "grumpy")
	require.NoError(t, err)
	assert.Contains(t, g.last.Prompt, moodPrompts[mood.Helpful])
}

func TestAnalyzeScreen(t *testing.T) {
	shot := &vision.Frame{Data: []byte{1, 2, 3}, Format: "png"}

	g := &fakeGenerator{reply: " That spreadsheet needs a SUM in column C. "}
	reply, err := newCompanion(g).AnalyzeScreen(context.Background(), shot, "why is my total wrong?", "budget.xlsx | Excel (excel)")
	require.NoError(t, err)
	assert.Equal(t, "That spreadsheet needs a SUM in column C.", reply)
	assert.Same(t, shot, g.last.Image)
	assert.Contains(t, g.last.Prompt, "why is my total wrong?")
	assert.Contains(t, g.last.Prompt, "budget.xlsx")

	reply, err = newCompanion(g).AnalyzeScreen(context.Background(), shot, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
	assert.Contains(t, g.last.Prompt, "hasn't asked anything specific")

	reply, err = newCompanion(&fakeGenerator{}).AnalyzeScreen(context.Background(), shot, "", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "nothing jumped out")

	_, err = newCompanion(nil).AnalyzeScreen(context.Background(), shot, "", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScreenFallback(t *testing.T) {
	assert.Equal(t, troubleSeeing, ScreenFallback(ErrNoScreenshot))
	assert.Equal(t, troubleSeeing, ScreenFallback(errors.New("boom")))
	assert.Equal(t, Fallback(ErrUnavailable), ScreenFallback(ErrUnavailable))
	assert.Contains(t, ScreenFallback(errors.New("googleapi: Error 429")), "limit")
}

func TestGenerateError(t *testing.T) {
	boom := errors.New("googleapi: Error 429: quota exceeded")
	c := newCompanion(&fakeGenerator{err: boom})

	_, err := c.ConversationalResponse(context.Background(), "hi", nil, "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, Fallback(err), "limit")
}

func TestFallback(t *testing.T) {
	assert.Contains(t, Fallback(ErrUnavailable), "isn't connected")
	assert.Contains(t, Fallback(fmt.Errorf("x: %w", context.DeadlineExceeded)), "too slowly")
	assert.Contains(t, Fallback(errors.New("model not found")), "configuration")
	assert.Equal(t, "Sorry, I'm having trouble thinking right now. Try again in a moment!", Fallback(errors.New("boom")))
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGemini_Generate(t *testing.T) {
	var gotKey, gotPath string
	var parts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		var body struct {
			Contents []struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body.Contents) > 0 {
			parts = len(body.Contents[0].Parts)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":" Looks fun! "}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "genai:test-model", g.Name())

	reply, err := g.Generate(context.Background(), Request{
		Prompt: "hello",
		Image:  &vision.Frame{Data: []byte{0x89, 'P', 'N', 'G'}, Format: "png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Looks fun!", reply)
	assert.Equal(t, "k", gotKey)
	assert.True(t, strings.HasSuffix(gotPath, "models/test-model:generateContent"), gotPath)
	assert.Equal(t, 2, parts)
}
