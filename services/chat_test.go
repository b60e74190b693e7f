package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaglesoak/portal/core"
)

func frame(content string) string {
	data, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
	})
	return "data: " + string(data) + "\n\n"
}

const doneFrame = "data: [DONE]\n\n"

// streamHandler writes parts one by one, flushing after each
func streamHandler(parts ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, part := range parts {
			_, _ = io.WriteString(w, part)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func newTestChat(t *testing.T, backend *FakeBackend, token string) *ChatSession {
	t.Helper()
	gw := NewGateway(GatewayConfig{BaseURL: backend.URL, Timeout: time.Second}, StaticTokenSource(token))
	session := NewChatClient(gw, nil).Open("42", "Lekki Villa")
	t.Cleanup(session.Close)
	return session
}

func TestChatSession_OpenSeedsGreeting(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	chat := newTestChat(t, backend, "")

	snap := chat.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, `Hello! I'm Nexus, your AI assistant. How can I help you with "Lekki Villa" today?`, snap.Messages[0].Text)
	assert.False(t, snap.Messages[0].IsUser)
	assert.Equal(t, ChatIdle, snap.State)
	assert.Len(t, chat.Suggestions(), 3)
	assert.NotEmpty(t, chat.ID())

	assert.Contains(t, Greeting(""), `"this listing"`)
}

// Requirement: scenario B, fragments Hel and lo produce the reply Hello.
func TestChatSession_Send_StreamsReply(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(frame("Hel"), frame("lo"), doneFrame))
	chat := newTestChat(t, backend, "tok1")

	var fragments []string
	err := chat.SendWithFragments(context.Background(), "hi", func(s string) { fragments = append(fragments, s) })

	require.NoError(t, err)
	snap := chat.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, core.Message{Text: "hi", IsUser: true}, snap.Messages[1])
	assert.Equal(t, core.Message{Text: "Hello", IsUser: false}, snap.Messages[2])
	assert.False(t, snap.Pending)
	assert.Equal(t, ChatCompleted, snap.State)
	assert.Equal(t, []string{"Hel", "lo"}, fragments)
	assert.Nil(t, chat.Suggestions())

	req := backend.Last()
	assert.Equal(t, "Bearer tok1", req.Header.Get("Authorization"))
	assert.JSONEq(t, `{"question":"hi","property_id":"42"}`, string(req.Body))
}

// Requirement: chunk boundaries do not change the outcome.
func TestChatSession_Send_ChunkSplitIsTransparent(t *testing.T) {
	stream := frame("Hel") + frame("lo") + doneFrame
	var parts []string
	for i := 0; i < len(stream); i += 3 {
		end := i + 3
		if end > len(stream) {
			end = len(stream)
		}
		parts = append(parts, stream[i:end])
	}

	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(parts...))
	chat := newTestChat(t, backend, "")

	require.NoError(t, chat.Send(context.Background(), "hi"))
	assert.Equal(t, "Hello", chat.Messages()[2].Text)
}

func TestChatSession_Send_SkipsMalformedFrames(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(
		frame("A"),
		"data: {not json\n\n",
		"event: ping\n\n",
		frame(""),
		frame("B"),
		doneFrame,
	))
	chat := newTestChat(t, backend, "")

	require.NoError(t, chat.Send(context.Background(), "hi"))
	assert.Equal(t, "AB", chat.Messages()[2].Text)
	assert.Equal(t, ChatCompleted, chat.State())
}

func TestChatSession_Send_StopsAtDone(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(frame("A"), doneFrame, frame("ignored")))
	chat := newTestChat(t, backend, "")

	require.NoError(t, chat.Send(context.Background(), "hi"))
	assert.Equal(t, "A", chat.Messages()[2].Text)
}

func TestChatSession_Send_EOFWithoutDoneCompletes(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(frame("A"), `data: {"choices":[{"delta":{"content":"lost"}}]}`))
	chat := newTestChat(t, backend, "")

	require.NoError(t, chat.Send(context.Background(), "hi"))
	assert.Equal(t, "A", chat.Messages()[2].Text)
	assert.False(t, chat.Pending())
}

// Requirement: a failed reply becomes the fixed apology, never the raw error.
func TestChatSession_Send_FailuresBecomeApology(t *testing.T) {
	tests := []struct {
		name  string
		setup func(backend *FakeBackend)
		check func(t *testing.T, err error)
	}{
		{
			name: "error status",
			setup: func(backend *FakeBackend) {
				backend.JSON(http.MethodPost, core.PathChat, http.StatusInternalServerError, map[string]any{"detail": "model overloaded"})
			},
			check: func(t *testing.T, err error) {
				var apiErr *core.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "model overloaded", apiErr.Message)
			},
		},
		{
			name: "unauthorized",
			setup: func(backend *FakeBackend) {
				backend.JSON(http.MethodPost, core.PathChat, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
			},
			check: func(t *testing.T, err error) {
				var apiErr *core.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			},
		},
		{
			name: "network",
			setup: func(backend *FakeBackend) {
				backend.Close()
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, core.ErrNetwork)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			backend := NewFakeBackend()
			defer backend.Close()
			chat := newTestChat(t, backend, "tok1")
			test.setup(backend)

			// Act
			err := chat.Send(context.Background(), "hi")

			// Assert
			test.check(t, err)
			snap := chat.Snapshot()
			require.Len(t, snap.Messages, 3)
			assert.Equal(t, core.Message{Text: "hi", IsUser: true}, snap.Messages[1])
			assert.Equal(t, core.Message{Text: ChatApology, IsUser: false}, snap.Messages[2])
			assert.False(t, snap.Pending)
			assert.Equal(t, ChatFailed, snap.State)
		})
	}
}

func TestChatSession_Send_RejectsBlankInput(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	chat := newTestChat(t, backend, "")

	for _, input := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, chat.Send(context.Background(), input), core.ErrEmptyMessage)
	}
	assert.Len(t, chat.Messages(), 1)
	assert.Empty(t, backend.Requests())
}

// blockingChat returns a chat whose backend sends one fragment and then
// holds the stream open until release is closed or the client goes away
func blockingChat(t *testing.T) (chat *ChatSession, streaming <-chan struct{}, release chan struct{}) {
	t.Helper()
	backend := NewFakeBackend()
	t.Cleanup(backend.Close)

	release = make(chan struct{})
	backend.Handle(http.MethodPost, core.PathChat, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, frame("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
			_, _ = io.WriteString(w, doneFrame)
		case <-r.Context().Done():
		}
	})
	chat = newTestChat(t, backend, "")

	ready := make(chan struct{})
	var once sync.Once
	unsubscribe := chat.Subscribe(func(s ChatSnapshot) {
		if s.Messages[len(s.Messages)-1].Text == "partial" {
			once.Do(func() { close(ready) })
		}
	})
	t.Cleanup(unsubscribe)
	return chat, ready, release
}

// Requirement: a second send while a reply streams is rejected untouched.
func TestChatSession_Send_BusyWhilePending(t *testing.T) {
	chat, streaming, release := blockingChat(t)

	done := make(chan error, 1)
	go func() { done <- chat.Send(context.Background(), "first") }()

	<-streaming
	before := chat.Snapshot()

	err := chat.Send(context.Background(), "second")

	assert.ErrorIs(t, err, core.ErrChatBusy)
	assert.Equal(t, before, chat.Snapshot())
	assert.True(t, chat.Pending())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "partial", chat.Messages()[2].Text)
}

// Requirement: after Close no message changes and the send is abandoned.
func TestChatSession_Close_StopsMutation(t *testing.T) {
	chat, streaming, release := blockingChat(t)
	defer close(release)

	done := make(chan error, 1)
	go func() { done <- chat.Send(context.Background(), "first") }()

	<-streaming
	chat.Close()
	frozen := chat.Snapshot()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrChatClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return after Close")
	}
	assert.Equal(t, frozen, chat.Snapshot())
	assert.ErrorIs(t, chat.Send(context.Background(), "again"), core.ErrChatClosed)
}

func TestChatSession_CallerCancelFails(t *testing.T) {
	chat, streaming, release := blockingChat(t)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- chat.Send(ctx, "first") }()

	<-streaming
	cancel()

	err := <-done
	require.Error(t, err)
	msgs := chat.Messages()
	assert.Equal(t, ChatApology, msgs[len(msgs)-1].Text)
	assert.False(t, chat.Pending())
}

func TestChatSession_SubscribeSeesGrowingReply(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(frame("Hel"), frame("lo"), doneFrame))
	chat := newTestChat(t, backend, "")

	var replies []string
	var states []ChatState
	chat.Subscribe(func(s ChatSnapshot) {
		replies = append(replies, s.Messages[len(s.Messages)-1].Text)
		states = append(states, s.State)
	})

	require.NoError(t, chat.Send(context.Background(), "hi"))

	assert.Equal(t, []string{"", "", "Hel", "Hello", "Hello"}, replies)
	assert.Equal(t, []ChatState{ChatSending, ChatStreaming, ChatStreaming, ChatStreaming, ChatCompleted}, states)
	assert.True(t, strings.HasPrefix(chat.Messages()[0].Text, "Hello! I'm Nexus"))
}

// Requirement: Ask claims the session before any network call, so a second
// claim is rejected while the first has not streamed yet
func TestChatSession_AskClaimsSession(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(frame("ok"), doneFrame))
	chat := newTestChat(t, backend, "")

	reply, err := chat.Ask("first")
	require.NoError(t, err)

	_, err = chat.Ask("second")
	assert.ErrorIs(t, err, core.ErrChatBusy)
	assert.True(t, chat.Pending())
	assert.Len(t, chat.Messages(), 3)
	assert.Empty(t, backend.Requests())

	require.NoError(t, reply.Stream(context.Background(), nil))
	assert.Equal(t, "ok", chat.Messages()[2].Text)
	assert.Error(t, reply.Stream(context.Background(), nil))
	assert.Len(t, backend.Requests(), 1)
}

func TestChatSession_SubscribeFromCallback(t *testing.T) {
	backend := NewFakeBackend()
	defer backend.Close()
	backend.Handle(http.MethodPost, core.PathChat, streamHandler(frame("A"), doneFrame))
	chat := newTestChat(t, backend, "")

	var calls int
	var unsubscribe func()
	unsubscribe = chat.Subscribe(func(ChatSnapshot) {
		calls++
		unsubscribe()
	})

	done := make(chan error, 1)
	go func() { done <- chat.Send(context.Background(), "hi") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Send deadlocked on a callback that unsubscribes")
	}
	assert.Equal(t, 1, calls)
}
