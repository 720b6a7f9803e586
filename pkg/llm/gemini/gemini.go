// Package gemini is a concrete, non-core adapter realizing llm.Client
// against Google's Gemini API. Grounded on the teacher's
// pkg/models/gemini/gemini.go (genai client construction, the
// logging http.RoundTripper keyed off a custom slog trace level,
// aggregating a streaming response into one full message).
//
// This package is an adapter, not core: the core (pkg/investigator,
// pkg/synthesizer) only ever depends on the llm.Client interface. A
// caller in cmd/investigate wires a *gemini.Client into the core.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nstogner/investigator/pkg/llm"
)

// LevelTrace is a custom log level for dumping full HTTP request/response
// traffic, enabled only when the default logger has it turned on.
const LevelTrace = slog.Level(-8)

// Client implements llm.Client against the Gemini API.
type Client struct {
	client    *genai.Client
	modelName string
}

// New creates a Gemini-backed llm.Client for the given model name
// (e.g. "gemini-2.0-flash").
func New(ctx context.Context, apiKey, modelName string) (*Client, error) {
	httpClient := &http.Client{
		Transport: &loggingTransport{base: http.DefaultTransport, apiKey: apiKey},
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: c, modelName: modelName}, nil
}

// Close releases the underlying genai client.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) genaiModel(opts llm.Options) *genai.GenerativeModel {
	gm := c.client.GenerativeModel(c.modelName)
	if opts.SystemPrompt != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(opts.SystemPrompt)}}
	}
	if len(opts.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return gm
}

// toGenaiSchema is a minimal, best-effort translation of our wire-shaped
// {type, properties, required} map into a *genai.Schema. Only the
// subset of JSON Schema toolkit.Schema.WireSchema ever emits (object of
// string/enum typed properties) is handled.
func toGenaiSchema(m map[string]any) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeObject}
	props, _ := m["properties"].(map[string]any)
	if len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			p, _ := raw.(map[string]any)
			ps := &genai.Schema{Type: genai.TypeString}
			if desc, ok := p["description"].(string); ok {
				ps.Description = desc
			}
			if enumRaw, ok := p["enum"].([]string); ok {
				ps.Enum = enumRaw
			}
			s.Properties[name] = ps
		}
	}
	if req, ok := m["required"].([]string); ok {
		s.Required = req
	}
	return s
}

func toGenaiMessages(messages []llm.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			// System prompt is carried on the model's SystemInstruction, not history.
			continue
		}
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return out
}

// Complete blocks until the full model response is available.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	s, err := c.Stream(ctx, messages, opts)
	if err != nil {
		return llm.Response{}, err
	}
	defer s.Close()

	gs := s.(*stream)
	return gs.full(ctx)
}

// Stream sends messages to Gemini and returns a Stream wrapper.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Stream, error) {
	if len(messages) == 0 {
		return nil, &llm.Error{Kind: llm.ErrKindInvalidRequest, Err: errors.New("no messages")}
	}

	gm := c.genaiModel(opts)
	history := toGenaiMessages(messages[:len(messages)-1])
	cs := gm.StartChat()
	cs.History = history

	last := messages[len(messages)-1]
	iter := cs.SendMessageStream(ctx, genai.Text(last.Content))
	return &stream{iter: iter}, nil
}

type stream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *stream) Recv() (llm.StreamEvent, error) {
	resp, err := s.iter.Next()
	if err == iterator.Done {
		return llm.StreamEvent{Done: true}, nil
	}
	if err != nil {
		return llm.StreamEvent{}, classifyErr(err)
	}

	var ev llm.StreamEvent
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				ev.TextDelta += string(p)
			case genai.FunctionCall:
				ev.ToolCall = &llm.ToolCall{Name: p.Name, Arguments: p.Args}
			}
		}
	}
	return ev, nil
}

func (s *stream) Close() error { return nil }

// full aggregates every Recv() event into one llm.Response, mirroring
// the teacher's geminiStream.FullMessage aggregation loop.
func (s *stream) full(ctx context.Context) (llm.Response, error) {
	var resp llm.Response
	var toolCalls []llm.ToolCall
	var text strings.Builder

	for {
		ev, err := s.Recv()
		if err != nil {
			return llm.Response{}, err
		}
		if ev.Done {
			break
		}
		text.WriteString(ev.TextDelta)
		if ev.ToolCall != nil {
			toolCalls = append(toolCalls, *ev.ToolCall)
		}
		if ctx.Err() != nil {
			return llm.Response{}, &llm.Error{Kind: llm.ErrKindTimeout, Err: ctx.Err()}
		}
	}

	resp.Content = text.String()
	resp.ToolCalls = toolCalls
	return resp, nil
}

func classifyErr(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &llm.Error{Kind: llm.ErrKindUnknown, Err: err}
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return &llm.Error{Kind: llm.ErrKindRateLimit, Err: err}
	case codes.DeadlineExceeded:
		return &llm.Error{Kind: llm.ErrKindTimeout, Err: err}
	case codes.Unavailable:
		return &llm.Error{Kind: llm.ErrKindServiceUnavailable, Err: err}
	case codes.InvalidArgument:
		return &llm.Error{Kind: llm.ErrKindInvalidRequest, Err: err}
	case codes.Unauthenticated, codes.PermissionDenied:
		return &llm.Error{Kind: llm.ErrKindAuth, Err: err}
	default:
		return &llm.Error{Kind: llm.ErrKindUnknown, Err: err}
	}
}

// loggingTransport mirrors the teacher's API-key injection plus trace
// dump wrapper in pkg/models/gemini/gemini.go.
type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("failed to dump gemini request", "error", err)
	} else {
		slog.Debug("gemini request", "url", req.URL.String(), "dump", string(reqDump))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")
	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("failed to dump gemini response", "error", err)
	} else {
		slog.Debug("gemini response", "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}
