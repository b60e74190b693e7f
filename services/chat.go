package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eaglesoak/portal/core"
	"github.com/eaglesoak/portal/internal/metrics"
	"github.com/eaglesoak/portal/pkg/sse"
)

// ChatApology replaces a reply that could not be streamed. Transport errors
// never reach the transcript.
const ChatApology = "Sorry, I've encountered an error. Please try again."

// drainLimit caps how much of a stream is read after the sentinel
const drainLimit = 64 * 1024

var errReplyStreamed = errors.New("reply already streamed")

// SuggestedQuestions are offered while the transcript holds only the greeting
var SuggestedQuestions = []string{
	"What are the 3 most unique features of this property?",
	"Tell me about the neighborhood and nearby amenities.",
	"What is the pricing history and current bidding info?",
}

func Greeting(propertyTitle string) string {
	if propertyTitle == "" {
		propertyTitle = "this listing"
	}
	return fmt.Sprintf("Hello! I'm Nexus, your AI assistant. How can I help you with \"%s\" today?", propertyTitle)
}

type ChatState int

const (
	ChatIdle ChatState = iota
	ChatSending
	ChatStreaming
	ChatCompleted
	ChatFailed
)

func (s ChatState) String() string {
	switch s {
	case ChatIdle:
		return "idle"
	case ChatSending:
		return "sending"
	case ChatStreaming:
		return "streaming"
	case ChatCompleted:
		return "completed"
	case ChatFailed:
		return "failed"
	}
	return fmt.Sprintf("chat_state(%d)", int(s))
}

// ChatSnapshot is an immutable view of a chat transcript
type ChatSnapshot struct {
	ID       string
	Messages []core.Message
	Pending  bool
	State    ChatState
}

type chatRequest struct {
	Question   string  `json:"question"`
	PropertyID core.ID `json:"property_id"`
}

type ChatClient struct {
	gateway *Gateway
	logger  *zap.Logger
}

func NewChatClient(gateway *Gateway, logger *zap.Logger) *ChatClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatClient{gateway: gateway, logger: logger}
}

// Open starts a transcript about one property, seeded with the greeting
func (c *ChatClient) Open(propertyID core.ID, propertyTitle string) *ChatSession {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &ChatSession{
		id:          id,
		client:      c,
		propertyID:  propertyID,
		logger:      c.logger.With(zap.String("chat_id", id), zap.String("property_id", propertyID.String())),
		messages:    []core.Message{{Text: Greeting(propertyTitle), IsUser: false}},
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]func(ChatSnapshot)),
	}
}

// ChatSession is one transcript. At most one reply streams at a time, and
// while it does the last message is that reply, mutated only by the
// goroutine running its Stream.
type ChatSession struct {
	id         string
	client     *ChatClient
	propertyID core.ID
	logger     *zap.Logger

	mu       sync.Mutex
	messages []core.Message
	pending  bool
	state    ChatState
	closed   bool

	// ctx lives as long as the session; Close cancels it
	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu orders deliveries; subsMu guards the subscriber set
	notifyMu    sync.Mutex
	subsMu      sync.Mutex
	subscribers map[int]func(ChatSnapshot)
	nextSubID   int
}

func (s *ChatSession) ID() string {
	return s.id
}

// Send asks question and blocks until the reply has streamed in
func (s *ChatSession) Send(ctx context.Context, question string) error {
	return s.SendWithFragments(ctx, question, nil)
}

// SendWithFragments is Send that also hands every applied fragment to
// onFragment, on the sending goroutine
func (s *ChatSession) SendWithFragments(ctx context.Context, question string, onFragment func(string)) error {
	reply, err := s.Ask(question)
	if err != nil {
		return err
	}
	return reply.Stream(ctx, onFragment)
}

// Reply is a claimed turn. The question and an empty placeholder are
// already in the transcript, and no other send starts until Stream returns.
type Reply struct {
	session  *ChatSession
	question string
	started  atomic.Bool
}

// Ask claims the session for question without contacting the backend. The
// returned Reply must be streamed exactly once.
func (s *ChatSession) Ask(question string) (*Reply, error) {
	if isBlank(question) {
		return nil, core.ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, core.ErrChatClosed
	}
	if s.pending {
		s.mu.Unlock()
		return nil, core.ErrChatBusy
	}
	s.messages = append(s.messages,
		core.Message{Text: question, IsUser: true},
		core.Message{Text: "", IsUser: false},
	)
	s.pending = true
	s.state = ChatSending
	s.publishLocked()

	return &Reply{session: s, question: question}, nil
}

// Stream opens the backend stream and applies fragments until the sentinel
// or EOF. Any failure turns the placeholder into the apology.
func (r *Reply) Stream(ctx context.Context, onFragment func(string)) error {
	if r.started.Swap(true) {
		return errReplyStreamed
	}
	s := r.session

	metrics.ChatStreamsActive.Inc()
	defer metrics.ChatStreamsActive.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	// Step 1: Open the stream
	body, err := json.Marshal(chatRequest{Question: r.question, PropertyID: s.propertyID})
	if err != nil {
		return s.fail(err)
	}
	resp, err := s.client.gateway.Stream(ctx, Request{
		Method:      http.MethodPost,
		Path:        core.PathChat,
		Body:        bytes.NewReader(body),
		ContentType: core.ContentJSON,
	})
	if err != nil {
		return s.fail(err)
	}
	defer resp.Body.Close()

	if !s.transition(ChatStreaming) {
		return core.ErrChatClosed
	}

	// Step 2: Apply fragments until the sentinel or EOF
	dec := sse.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.fail(err)
		}
		if ev.Done {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
			break
		}

		content, err := sse.Content(ev.Data)
		if err != nil {
			metrics.ChatMalformedFramesTotal.Inc()
			s.logger.Warn("skipping stream frame", zap.Error(fmt.Errorf("%w: %w", core.ErrStreamProtocol, err)))
			continue
		}
		if content == "" {
			continue
		}
		if !s.apply(content) {
			return core.ErrChatClosed
		}
		if onFragment != nil {
			onFragment(content)
		}
	}

	// Step 3: Done
	if !s.transition(ChatCompleted) {
		return core.ErrChatClosed
	}
	metrics.ChatRepliesTotal.WithLabelValues("completed").Inc()
	return nil
}

// apply appends content to the in-progress reply
func (s *ChatSession) apply(content string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	last := len(s.messages) - 1
	s.messages[last].Text += content
	s.publishLocked()
	metrics.ChatFragmentsTotal.Inc()
	return true
}

func (s *ChatSession) transition(state ChatState) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.state = state
	if state == ChatCompleted {
		s.pending = false
	}
	s.publishLocked()
	return true
}

// fail swaps the placeholder for the apology and reports err to the caller
func (s *ChatSession) fail(err error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrChatClosed
	}
	if last := len(s.messages) - 1; last >= 0 && !s.messages[last].IsUser {
		s.messages = s.messages[:last]
	}
	s.messages = append(s.messages, core.Message{Text: ChatApology, IsUser: false})
	s.pending = false
	s.state = ChatFailed
	s.publishLocked()

	metrics.ChatRepliesTotal.WithLabelValues("failed").Inc()
	s.logger.Error("chat reply failed", zap.Error(err))
	return err
}

// Close cancels any reply in flight. No message changes after Close returns.
func (s *ChatSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

func (s *ChatSession) Snapshot() ChatSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *ChatSession) Messages() []core.Message {
	return s.Snapshot().Messages
}

func (s *ChatSession) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *ChatSession) State() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Suggestions returns the canned prompts while nothing has been asked yet
func (s *ChatSession) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) > 1 {
		return nil
	}
	out := make([]string, len(SuggestedQuestions))
	copy(out, SuggestedQuestions)
	return out
}

// Subscribe registers fn for every transcript change, in order. fn may
// subscribe or unsubscribe but must not Ask or Send on the same session.
func (s *ChatSession) Subscribe(fn func(ChatSnapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subscribers, id)
		s.subsMu.Unlock()
	}
}

func (s *ChatSession) subscriberList() []func(ChatSnapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	fns := make([]func(ChatSnapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	return fns
}

// publishLocked must be called with mu held; it releases mu
func (s *ChatSession) publishLocked() {
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	for _, fn := range s.subscriberList() {
		fn(snap)
	}
	s.notifyMu.Unlock()
}

func (s *ChatSession) snapshotLocked() ChatSnapshot {
	messages := make([]core.Message, len(s.messages))
	copy(messages, s.messages)
	return ChatSnapshot{
		ID:       s.id,
		Messages: messages,
		Pending:  s.pending,
		State:    s.state,
	}
}
