package skill

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/dispatch"
	"github.com/alienxp03/oraculum/internal/gateway"
	"github.com/alienxp03/oraculum/internal/gateway/gatewaytest"
)

func newRecorder(t *testing.T, name string) (*http.Client, func()) {
	t.Helper()
	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), recorder.ModeReplaying, nil)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	r.SetMatcher(func(r *http.Request, i cassette.Request) bool {
		return r.Method == i.Method && r.URL.String() == i.URL
	})
	return &http.Client{Transport: r}, func() {
		if err := r.Stop(); err != nil {
			t.Errorf("failed to stop recorder: %v", err)
		}
	}
}

func setupRegistry(t *testing.T, backend *gatewaytest.Backend) (*Registry, func()) {
	t.Helper()
	gw := gateway.New(backend)
	return Defaults(gw, nil), func() { gw.Close() }
}

func TestRegistry(t *testing.T) {
	reg, cleanup := setupRegistry(t, gatewaytest.New(""))
	defer cleanup()

	if got := strings.Join(reg.Names(), ","); got != "deep_research,fact_check" {
		t.Errorf("unexpected default skills: %s", got)
	}
	if _, err := reg.Get(WebScout); err == nil {
		t.Error("web_scout should not be registered without a crawler")
	}

	reg.Register(NewScout(ScoutConfig{}))
	if _, err := reg.Get(WebScout); err != nil {
		t.Errorf("expected web_scout after registering: %v", err)
	}
}

func TestDeepResearch(t *testing.T) {
	t.Run("JoinsHits", func(t *testing.T) {
		backend := gatewaytest.New("")
		backend.Memory = []string{"too sweet", "great for commutes"}
		reg, cleanup := setupRegistry(t, backend)
		defer cleanup()

		s, _ := reg.Get(DeepResearch)
		out, err := s.Execute(context.Background(), Input{Query: "Kopi Oat"})
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		if out.Data != "too sweet\n\ngreat for commutes" {
			t.Errorf("unexpected data %q", out.Data)
		}
		if calls := backend.Calls(); len(calls) != 1 || calls[0].Task != "query_memory" || calls[0].Query != "Kopi Oat" {
			t.Errorf("unexpected backend calls: %+v", calls)
		}
	})

	t.Run("EmptyMemory", func(t *testing.T) {
		reg, cleanup := setupRegistry(t, gatewaytest.New(""))
		defer cleanup()

		s, _ := reg.Get(DeepResearch)
		if _, err := s.Execute(context.Background(), Input{Query: "x"}); !errors.Is(err, ErrNoData) {
			t.Errorf("expected ErrNoData, got %v", err)
		}
	})
}

func TestFactCheck(t *testing.T) {
	tests := []struct {
		name    string
		sheet   string
		wantErr bool
	}{
		{"Facts", "Sugar: 4g per serving", false},
		{"Empty", "  ", true},
		{"NoStructuredData", "No structured data for this product", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := gatewaytest.New("")
			backend.FactSheet = tt.sheet
			reg, cleanup := setupRegistry(t, backend)
			defer cleanup()

			s, _ := reg.Get(FactCheck)
			out, err := s.Execute(context.Background(), Input{Query: "Kopi Oat"})
			if tt.wantErr {
				if !errors.Is(err, ErrNoData) {
					t.Errorf("expected ErrNoData, got %v", err)
				}
				return
			}
			if err != nil || out.Data != tt.sheet {
				t.Errorf("unexpected output %+v, err %v", out, err)
			}
		})
	}
}

func TestScout(t *testing.T) {
	t.Run("ReturnsKnowledge", func(t *testing.T) {
		client, stop := newRecorder(t, "web_scout")
		defer stop()

		s := NewScout(ScoutConfig{Client: client})
		out, err := s.Execute(context.Background(), Input{Query: "Product: Bulbasaur plush"})
		if err != nil {
			t.Fatalf("execute failed: %v", err)
		}
		if !strings.Contains(out.Data, "63.00 GBP") {
			t.Errorf("unexpected knowledge %q", out.Data)
		}
	})

	t.Run("ServiceError", func(t *testing.T) {
		client, stop := newRecorder(t, "web_scout_error")
		defer stop()

		s := NewScout(ScoutConfig{Client: client})
		_, err := s.Execute(context.Background(), Input{Query: "Product: Bulbasaur plush"})
		if err == nil || !strings.Contains(err.Error(), "504") {
			t.Errorf("expected crawler status error, got %v", err)
		}
	})
}

func TestRunner_Prepare(t *testing.T) {
	backend := gatewaytest.New("")
	backend.Memory = []string{"people on forums call it chalky"}
	reg, cleanup := setupRegistry(t, backend)
	defer cleanup()

	runner := NewRunner(reg, "PRODUCT: Kopi Oat", nil)
	var _ dispatch.Preparer = runner

	t.Run("AppendsKnowledge", func(t *testing.T) {
		job := dispatch.PromptJob{
			Agent:  core.Agent{Name: "Ana", Demographic: "Lisbon", Skills: []string{DeepResearch, FactCheck, "telepathy"}},
			Prompt: "base prompt",
		}
		prompt, sources := runner.Prepare(context.Background(), job)

		if !strings.HasPrefix(prompt, "base prompt\n\n=== REAL-WORLD CONTEXT ACQUIRED ===") {
			t.Errorf("knowledge block not appended: %q", prompt)
		}
		if !strings.Contains(prompt, "### SENSORY OBSERVATION (Source: DEEP_RESEARCH)\npeople on forums call it chalky") {
			t.Errorf("observation missing: %q", prompt)
		}
		if strings.Contains(prompt, "FACT_CHECK") {
			t.Error("failed skill should not contribute")
		}
		if !strings.HasSuffix(prompt, "Use the facts above to answer accurately.\n") {
			t.Errorf("closing instruction missing: %q", prompt)
		}
		if !strings.Contains(sources, "chalky") {
			t.Errorf("sources not reported: %q", sources)
		}
	})

	t.Run("NoSkills", func(t *testing.T) {
		prompt, sources := runner.Prepare(context.Background(), dispatch.PromptJob{Prompt: "plain"})
		if prompt != "plain" || sources != "" {
			t.Errorf("expected unchanged prompt, got %q / %q", prompt, sources)
		}
	})
}
