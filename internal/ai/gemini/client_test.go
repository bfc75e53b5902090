package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(_ context.Context, model string, config *genai.GenerateContentConfig, _ []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func noSleep(t *testing.T) {
	t.Helper()
	original := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = original })
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	chats.enqueue("gemini-pro", textResponse(`{"score": 80}`), nil)

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 2, logger: zap.NewNop()}

	output, err := g.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != `{"score": 80}` {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}

	for _, call := range chats.calls {
		if call.config == nil || call.config.SystemInstruction == nil {
			t.Fatalf("expected system instruction to be set")
		}
		if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
			t.Fatalf("unexpected system instruction: %q", got)
		}
		if len(call.chat.messages) != 1 || call.chat.messages[0] != "message" {
			t.Fatalf("unexpected chat message: %+v", call.chat.messages)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noSleep(t)

	chats := newFakeChatCreator()
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	chats.enqueue("gemini-pro", nil, tempErr)
	chats.enqueue("gemini-pro", nil, tempErr)

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 2, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(chats.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 3, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := &Generator{chats: chats, model: "gemini-pro", maxRetries: 3, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "sys", "msg"); err == nil {
		t.Fatal("expected error for bad request")
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorRejectsEmptyMessage(t *testing.T) {
	g := &Generator{chats: newFakeChatCreator(), model: "gemini-pro", maxRetries: 1, logger: zap.NewNop()}

	if _, err := g.GenerateContent(context.Background(), "sys", "   "); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		attempt   int
		wantDelay time.Duration
		wantRetry bool
	}{
		{name: "plain error", err: errors.New("boom"), attempt: 1},
		{name: "server error backoff", err: genai.APIError{Code: http.StatusBadGateway}, attempt: 2, wantDelay: 2 * baseRetryDelay, wantRetry: true},
		{name: "short quota delay", err: genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 5.5s."}, attempt: 1, wantDelay: 5500 * time.Millisecond, wantRetry: true},
		{name: "quota without hint", err: genai.APIError{Code: http.StatusTooManyRequests}, attempt: 1, wantDelay: baseRetryDelay, wantRetry: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := retryDelay(tt.err, tt.attempt)
			if retry != tt.wantRetry || delay != tt.wantDelay {
				t.Fatalf("retryDelay() = (%v, %v), want (%v, %v)", delay, retry, tt.wantDelay, tt.wantRetry)
			}
		})
	}
}

func TestWaitReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("wait did not return promptly: %s", elapsed)
	}
}

func TestWaitElapses(t *testing.T) {
	if err := wait(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
