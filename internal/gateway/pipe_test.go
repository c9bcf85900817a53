package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is re-executed by the pipe tests
// and plays the part of the inference worker.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ORACULUM_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("HELPER_MODE") {
	case "fail":
		fmt.Println(`{"status":"loading_models"}`)
		fmt.Println(`{"status":"error","message":"Startup Error: no weights"}`)
		return
	case "silent":
		time.Sleep(10 * time.Second)
		return
	case "deaf":
		fmt.Println(`{"status":"ready"}`)
		time.Sleep(10 * time.Second)
		return
	}

	fmt.Println("warming up caches")
	fmt.Println(`{"status":"loading_models"}`)
	fmt.Println(`{"status":"ready","memory":"loaded"}`)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), MaxFrameSize)
	for scanner.Scan() {
		var req struct {
			Task   string `json:"task"`
			Prompt string `json:"prompt"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			fmt.Println(`{"status":"error","message":"bad request"}`)
			continue
		}
		if strings.HasPrefix(req.Prompt, "slow") {
			time.Sleep(300 * time.Millisecond)
		}
		out, _ := json.Marshal(map[string]string{"status": "success", "text": "echo:" + req.Prompt})
		fmt.Println(string(out))
	}
}

func startHelper(t *testing.T, mode string) (*PipeTransport, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return StartPipe(ctx, PipeConfig{
		Command:           os.Args[0],
		Args:              []string{"-test.run=TestHelperProcess", "--"},
		Env:               []string{"ORACULUM_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
		StartupTimeout:    5 * time.Second,
		HandshakeAttempts: 10,
	})
}

func TestPipeTransport_RoundTrip(t *testing.T) {
	pipe, err := startHelper(t, "echo")
	if err != nil {
		t.Fatalf("StartPipe failed: %v", err)
	}
	gw := New(pipe, WithTimeout(5*time.Second))
	defer gw.Close()

	got, err := gw.Complete(context.Background(), Request{Prompt: "first line\nsecond line", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "echo:first line\nsecond line" {
		t.Errorf("unexpected completion %q", got)
	}
}

func TestPipeTransport_HandshakeError(t *testing.T) {
	_, err := startHelper(t, "fail")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if !strings.Contains(err.Error(), "no weights") {
		t.Errorf("expected backend message in error, got %q", err.Error())
	}
}

func TestPipeTransport_HandshakeTimeout(t *testing.T) {
	ctx := context.Background()
	_, err := StartPipe(ctx, PipeConfig{
		Command:           os.Args[0],
		Args:              []string{"-test.run=TestHelperProcess", "--"},
		Env:               []string{"ORACULUM_WANT_HELPER_PROCESS=1", "HELPER_MODE=silent"},
		StartupTimeout:    100 * time.Millisecond,
		HandshakeAttempts: 10,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPipeTransport_DiscardsLateResponse(t *testing.T) {
	pipe, err := startHelper(t, "echo")
	if err != nil {
		t.Fatalf("StartPipe failed: %v", err)
	}
	gw := New(pipe, WithTimeout(50*time.Millisecond))
	defer gw.Close()

	_, err = gw.Complete(context.Background(), Request{Prompt: "slow one"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	// The late answer to "slow one" arrives first and must not be paired
	// with the next request.
	gw2 := New(pipe, WithTimeout(5*time.Second))
	got, err := gw2.Complete(context.Background(), Request{Prompt: "fast one"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "echo:fast one" {
		t.Errorf("expected response to the second request, got %q", got)
	}
}

func TestPipeTransport_WriteHonoursDeadline(t *testing.T) {
	pipe, err := startHelper(t, "deaf")
	if err != nil {
		t.Fatalf("StartPipe failed: %v", err)
	}
	defer pipe.Close()

	// Larger than any OS pipe buffer, so the write blocks on a backend
	// that never reads stdin.
	frame, _ := EncodeFrame(generateFrame{Task: TaskGenerate, Request: Request{Prompt: strings.Repeat("x", 4<<20)}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = pipe.RoundTrip(ctx, frame)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("RoundTrip returned after %s, want close to the deadline", elapsed)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	if _, err := pipe.RoundTrip(ctx2, frame); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected the next call to time out behind the stuck write, got %v", err)
	}
}

func TestPipeTransport_Close(t *testing.T) {
	pipe, err := startHelper(t, "echo")
	if err != nil {
		t.Fatalf("StartPipe failed: %v", err)
	}
	if err := pipe.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := pipe.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	frame, _ := EncodeFrame(generateFrame{Task: TaskGenerate, Request: Request{Prompt: "hi"}})
	_, err = pipe.RoundTrip(context.Background(), frame)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after close, got %v", err)
	}
}
