package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Task names understood by the backend.
const (
	TaskGenerate    = "generate"
	TaskResearch    = "research"
	TaskGetFacts    = "get_facts"
	TaskQueryMemory = "query_memory"
)

// Response status values.
const (
	statusSuccess = "success"
	statusError   = "error"
	statusReady   = "ready"
)

// Request is one text completion request.
type Request struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Image       string  `json:"image,omitempty"` // base64
	PDF         string  `json:"pdf,omitempty"`   // base64
	Temperature float64 `json:"temperature"`
}

type generateFrame struct {
	Task string `json:"task"`
	Request
}

type researchFrame struct {
	Task    string `json:"task"`
	Product string `json:"product"`
	Context string `json:"context"`
}

type queryFrame struct {
	Task  string `json:"task"`
	Query string `json:"query"`
}

// wireResponse is the union of all response schemas.
type wireResponse struct {
	Status       string   `json:"status"`
	Text         string   `json:"text,omitempty"`
	Message      string   `json:"message,omitempty"`
	ResearchData []string `json:"research_data,omitempty"`
	FactSheet    string   `json:"fact_sheet,omitempty"`
	Data         []string `json:"data,omitempty"`
}

// EncodeFrame marshals v as a single newline-terminated record.
// JSON string escaping turns any separator inside the payload into \n or \r,
// so the record itself never contains a raw separator.
func EncodeFrame(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if bytes.ContainsAny(data, "\r\n") {
		return nil, fmt.Errorf("encoded frame contains a record separator")
	}
	return append(data, '\n'), nil
}

// decodeResponse parses one response record.
func decodeResponse(raw []byte) (wireResponse, error) {
	var resp wireResponse
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return resp, protocol("empty response", "", nil)
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return resp, protocol("malformed response", string(trimmed), err)
	}
	switch resp.Status {
	case statusSuccess:
		return resp, nil
	case statusError:
		msg := resp.Message
		if msg == "" {
			msg = "unspecified backend error"
		}
		return resp, &Error{Kind: KindBackend, Message: msg}
	default:
		return resp, protocol(fmt.Sprintf("unexpected status %q", resp.Status), string(trimmed), nil)
	}
}
