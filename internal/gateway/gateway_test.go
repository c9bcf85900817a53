package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alienxp03/oraculum/internal/gateway/gatewaytest"
)

func TestGateway_MutualExclusion(t *testing.T) {
	backend := gatewaytest.New("")
	backend.Generate = func(c gatewaytest.Call) (string, error) {
		return "re:" + c.Prompt, nil
	}
	backend.Delay = 2 * time.Millisecond
	gw := New(backend)
	defer gw.Close()

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prompt := fmt.Sprintf("prompt-%d", i)
			got, err := gw.Complete(context.Background(), Request{Prompt: prompt, MaxTokens: 10})
			if err != nil {
				errs <- err
				return
			}
			if got != "re:"+prompt {
				errs <- fmt.Errorf("caller %d got %q", i, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if backend.Interleaved() {
		t.Fatal("backend observed two requests in flight at once")
	}
	if n := len(backend.Calls()); n != callers {
		t.Errorf("expected %d backend calls, got %d", callers, n)
	}
	if gw.Calls() != callers {
		t.Errorf("expected gateway call count %d, got %d", callers, gw.Calls())
	}
}

func TestGateway_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(b *gatewaytest.Backend)
		timeout time.Duration
		want    error
		kind    Kind
	}{
		{
			name: "BackendError",
			setup: func(b *gatewaytest.Backend) {
				b.Generate = func(gatewaytest.Call) (string, error) { return "", errors.New("out of memory") }
			},
			want: ErrBackend,
			kind: KindBackend,
		},
		{
			name: "MalformedPayload",
			setup: func(b *gatewaytest.Backend) {
				b.RawResponse = func(gatewaytest.Call) []byte { return []byte("Traceback (most recent call last)") }
			},
			want: ErrProtocol,
			kind: KindProtocol,
		},
		{
			name: "UnknownStatus",
			setup: func(b *gatewaytest.Backend) {
				b.RawResponse = func(gatewaytest.Call) []byte { return []byte(`{"status":"thinking"}`) }
			},
			want: ErrProtocol,
			kind: KindProtocol,
		},
		{
			name: "Timeout",
			setup: func(b *gatewaytest.Backend) {
				b.Delay = 500 * time.Millisecond
			},
			timeout: 20 * time.Millisecond,
			want:    ErrTimeout,
			kind:    KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := gatewaytest.New("ok")
			tt.setup(backend)
			gw := New(backend, WithTimeout(tt.timeout))
			defer gw.Close()

			_, err := gw.Complete(context.Background(), Request{Prompt: "hi"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, KindOf(err))
			}
			var ge *Error
			if errors.As(err, &ge) && ge.Op != TaskGenerate {
				t.Errorf("expected op %q, got %q", TaskGenerate, ge.Op)
			}
		})
	}
}

func TestGateway_ProtocolErrorCarriesRawPayload(t *testing.T) {
	backend := gatewaytest.New("")
	backend.RawResponse = func(gatewaytest.Call) []byte { return []byte("<html>bad gateway</html>") }
	gw := New(backend)
	defer gw.Close()

	_, err := gw.Complete(context.Background(), Request{Prompt: "hi"})
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if ge.Raw != "<html>bad gateway</html>" {
		t.Errorf("expected raw payload to be attached, got %q", ge.Raw)
	}
	if !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("expected raw payload in message, got %q", err.Error())
	}
}

func TestGateway_ProtocolErrorKeepsRunesWhole(t *testing.T) {
	raw := strings.Repeat("a", 511) + strings.Repeat("é", 10)
	backend := gatewaytest.New("")
	backend.RawResponse = func(gatewaytest.Call) []byte { return []byte(raw) }
	gw := New(backend)
	defer gw.Close()

	_, err := gw.Complete(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected protocol error")
	}
	if !utf8.ValidString(err.Error()) || strings.Contains(err.Error(), `\x`) {
		t.Errorf("raw payload was cut mid-rune: %q", err.Error())
	}
	if !strings.Contains(err.Error(), strings.Repeat("a", 511)+`..."`) {
		t.Errorf("expected payload cut before the first multi-byte rune, got %q", err.Error())
	}

	if got := truncate("naïve", 3); got != "na..." {
		t.Errorf("truncate = %q, want %q", got, "na...")
	}
}

func TestGateway_Closed(t *testing.T) {
	backend := gatewaytest.New("ok")
	gw := New(backend)

	if err := gw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !backend.Closed() {
		t.Error("expected transport to be closed")
	}
	if err := gw.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	_, err := gw.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after close, got %v", err)
	}
	if len(backend.Calls()) != 0 {
		t.Error("closed gateway should not reach the backend")
	}
}

func TestGateway_AuxiliaryTasks(t *testing.T) {
	backend := gatewaytest.New("")
	backend.Research = []string{"voice one", "voice two"}
	backend.FactSheet = "Protein: 12g"
	backend.Memory = []string{"remembered"}
	gw := New(backend)
	defer gw.Close()
	ctx := context.Background()

	voices, err := gw.Research(ctx, "Millet Bar", "urban snacking")
	if err != nil {
		t.Fatalf("Research failed: %v", err)
	}
	if len(voices) != 2 || voices[0] != "voice one" {
		t.Errorf("unexpected research data: %v", voices)
	}

	facts, err := gw.LookupFacts(ctx, "Millet Bar")
	if err != nil {
		t.Fatalf("LookupFacts failed: %v", err)
	}
	if facts != "Protein: 12g" {
		t.Errorf("unexpected fact sheet: %q", facts)
	}

	mem, err := gw.QueryMemory(ctx, "Millet Bar")
	if err != nil {
		t.Fatalf("QueryMemory failed: %v", err)
	}
	if len(mem) != 1 || mem[0] != "remembered" {
		t.Errorf("unexpected memory data: %v", mem)
	}

	calls := backend.Calls()
	wantTasks := []string{TaskResearch, TaskGetFacts, TaskQueryMemory}
	for i, want := range wantTasks {
		if calls[i].Task != want {
			t.Errorf("call %d: expected task %q, got %q", i, want, calls[i].Task)
		}
	}
	if calls[0].Product != "Millet Bar" || calls[0].Context != "urban snacking" {
		t.Errorf("research payload not forwarded: %+v", calls[0])
	}
}

func TestGateway_QueuedCallersDoNotTimeOutWhileWaiting(t *testing.T) {
	backend := gatewaytest.New("ok")
	backend.Delay = 30 * time.Millisecond
	// Each call fits the timeout, the total queue does not.
	gw := New(backend, WithTimeout(100*time.Millisecond))
	defer gw.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gw.Complete(context.Background(), Request{Prompt: "x"}); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

func TestEncodeFrame_EscapesSeparators(t *testing.T) {
	frame, err := EncodeFrame(generateFrame{
		Task:    TaskGenerate,
		Request: Request{Prompt: "line one\nline two\r\nline three ", MaxTokens: 5},
	})
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	if frame[len(frame)-1] != '\n' {
		t.Fatal("expected frame to end with a newline")
	}
	body := frame[:len(frame)-1]
	if strings.ContainsAny(string(body), "\r\n") {
		t.Errorf("frame body contains a raw separator: %q", body)
	}
	if !strings.Contains(string(body), `"task":"generate"`) {
		t.Errorf("expected task field in frame: %s", body)
	}
	if !strings.Contains(string(body), `"max_tokens":5`) {
		t.Errorf("expected flattened request fields in frame: %s", body)
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantKind Kind
	}{
		{"Success", `{"status":"success","text":"hello"}`, "hello", 0},
		{"TrailingNewline", "{\"status\":\"success\",\"text\":\"hi\"}\n", "hi", 0},
		{"BackendError", `{"status":"error","message":"boom"}`, "", KindBackend},
		{"Empty", "", "", KindProtocol},
		{"Garbage", "not json", "", KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := decodeResponse([]byte(tt.raw))
			if tt.wantKind == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Text != tt.wantText {
					t.Errorf("expected text %q, got %q", tt.wantText, resp.Text)
				}
				return
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("expected kind %s, got %v", tt.wantKind, err)
			}
		})
	}
}
