// Package llmprovider adapts internal/provider's Eino-backed provider
// Registry to the modules.LLM capability interface, the way the teacher's
// session.Processor drives provider.Provider.CreateCompletion from its
// agentic loop (internal/session/loop.go).
package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/uep-dev/uepd/internal/coretypes"
	"github.com/uep-dev/uepd/internal/modules"
	"github.com/uep-dev/uepd/internal/provider"
)

const (
	maxRetries           = 3
	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 2 * time.Minute
)

// Adapter satisfies modules.LLM by routing ReasoningRequests through a
// provider.Registry. One Adapter instance backs the whole process; the
// mode-specific response shape is produced by parseResponse, not by the
// provider itself.
type Adapter struct {
	registry   *provider.Registry
	providerID string
	modelID    string
}

// New creates an Adapter that sends every request to providerID/modelID.
// If either is empty, the registry's configured default model is used.
func New(registry *provider.Registry, providerID, modelID string) *Adapter {
	return &Adapter{registry: registry, providerID: providerID, modelID: modelID}
}

func (a *Adapter) Name() string { return "llm" }

func (a *Adapter) Close() error { return nil }

func (a *Adapter) resolveModel() (string, string, error) {
	if a.providerID != "" && a.modelID != "" {
		return a.providerID, a.modelID, nil
	}
	m, err := a.registry.DefaultModel()
	if err != nil {
		return "", "", fmt.Errorf("llmprovider: no model configured: %w", err)
	}
	return m.ProviderID, m.ID, nil
}

// Respond implements modules.LLM. It builds a system message that pins the
// reasoning module to the requested mode and tool catalogue, retries a
// failed provider call (any error, up to maxRetries times) with jittered
// exponential backoff (matching
// the teacher's newRetryBackoff), and decodes the reply per mode.
func (a *Adapter) Respond(ctx context.Context, req modules.ReasoningRequest) (modules.ReasoningResponse, error) {
	providerID, modelID, err := a.resolveModel()
	if err != nil {
		return modules.ReasoningResponse{}, err
	}
	p, err := a.registry.Get(providerID)
	if err != nil {
		return modules.ReasoningResponse{}, fmt.Errorf("llmprovider: %w", err)
	}

	compReq := &provider.CompletionRequest{
		Model: modelID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: modePrompt(req.Mode, req.ToolChoiceMode)},
			{Role: schema.User, Content: req.Prompt},
		},
		Tools: toolInfos(req.Tools),
	}

	var msg *schema.Message
	operation := func() error {
		stream, err := p.CreateCompletion(ctx, compReq)
		if err != nil {
			return err
		}
		defer stream.Close()

		msg, err = collectStream(stream)
		return err
	}

	b := newRetryBackoff(ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return modules.ReasoningResponse{}, fmt.Errorf("llmprovider: %w", err)
	}

	return parseResponse(req.Mode, msg), nil
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
}

func collectStream(stream *provider.CompletionStream) (*schema.Message, error) {
	var chunks []*schema.Message
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if chunks == nil {
				return nil, err
			}
			break
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return &schema.Message{Role: schema.Assistant}, nil
	}
	msg, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func toolInfos(specs []modules.ToolSpec) []*schema.ToolInfo {
	if len(specs) == 0 {
		return nil
	}
	infos := make([]*schema.ToolInfo, 0, len(specs))
	for _, t := range specs {
		params := make(map[string]*schema.ParameterInfo, len(t.Parameters))
		for name := range t.Parameters {
			params[name] = &schema.ParameterInfo{Type: schema.String}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        t.Name,
			Desc:        t.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func modePrompt(mode coretypes.Mode, toolChoiceMode string) string {
	return fmt.Sprintf(
		"Respond for mode=%s. Reply with a single JSON object matching that "+
			"mode's schema, or call exactly one of the offered tools "+
			"(tool_choice=%s).", mode, toolChoiceMode)
}

// parseResponse decodes msg following the per-mode response schemas: a
// function call if the provider chose one, otherwise the mode's
// structured JSON payload with text/confidence/session_control pulled
// out of Raw.
func parseResponse(mode coretypes.Mode, msg *schema.Message) modules.ReasoningResponse {
	resp := modules.ReasoningResponse{Mode: mode}

	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		resp.FunctionCall = &modules.FunctionCall{Name: tc.Function.Name, Arguments: args}
		return resp
	}

	content := strings.TrimSpace(msg.Content)
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err == nil {
		resp.Raw = raw
		if text, ok := raw["text"].(string); ok {
			resp.Text = text
		}
		if conf, ok := raw["confidence"].(float64); ok {
			resp.Confidence = conf
		}
		if sc, ok := raw["session_control"].(map[string]any); ok {
			resp.SessionControl = parseSessionControl(sc)
		}
		return resp
	}

	resp.Text = content
	return resp
}

func parseSessionControl(raw map[string]any) *modules.SessionControl {
	sc := &modules.SessionControl{}
	if v, ok := raw["should_end_session"].(bool); ok {
		sc.ShouldEndSession = v
	}
	if v, ok := raw["confidence"].(float64); ok {
		sc.Confidence = v
	}
	if v, ok := raw["end_reason"].(string); ok {
		sc.EndReason = coretypes.SessionEndReason(v)
	}
	return sc
}
