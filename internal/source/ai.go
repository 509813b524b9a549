package source

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/orgdesk/enrich-cli/internal/model"
	"github.com/orgdesk/enrich-cli/internal/resilience"
	"github.com/orgdesk/enrich-cli/pkg/anthropic"
	"github.com/orgdesk/enrich-cli/pkg/jina"
)

// NameAI is the source id of the AI extraction adapter.
const NameAI = "ai_extract"

const extractSystemPrompt = `You extract contact details for South Korean organizations from web page text.
Respond with a single JSON object and nothing else. Keys: phone, fax, email, address, homepage.
Each key maps to {"value": string, "confidence": number between 0 and 1}.
Omit a key entirely when the page does not state it. Never guess or invent values.`

// AIAdapter reads the organization's pages through the Jina reader and asks
// the model to extract contact details. It is the last-resort source: slow
// and paid, so the probe plan orders it after everything else. Running more
// than one pass lets passes that agree form a consensus group downstream.
type AIAdapter struct {
	client    anthropic.Client
	reader    jina.Client
	model     string
	maxTokens int64
	passes    int
}

// NewAIAdapter creates the AI extraction adapter.
func NewAIAdapter(c anthropic.Client, reader jina.Client, modelID string, maxTokens, passes int) *AIAdapter {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if passes <= 0 {
		passes = 1
	}
	return &AIAdapter{client: c, reader: reader, model: modelID, maxTokens: int64(maxTokens), passes: passes}
}

func (a *AIAdapter) Name() string { return NameAI }

func (a *AIAdapter) Fields() []model.FieldKey {
	return []model.FieldKey{model.FieldPhone, model.FieldFax, model.FieldEmail, model.FieldAddress, model.FieldHomepage}
}

func (a *AIAdapter) Probe(ctx context.Context, q Query) ([]model.Candidate, error) {
	text, err := a.gatherText(ctx, q)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	// Keep the prompt bounded; contact blocks live near the top or bottom
	// of a page, so a generous prefix is enough.
	if len(text) > 30000 {
		text = text[:30000]
	}

	var out []model.Candidate
	for pass := 0; pass < a.passes; pass++ {
		cands, err := a.extract(ctx, q, text)
		if err != nil {
			if pass == 0 {
				return nil, err
			}
			// Earlier passes already produced candidates; keep them.
			zap.L().Warn("extraction pass failed",
				zap.String("org_id", q.Org.ID),
				zap.Int("pass", pass+1),
				zap.Error(err),
			)
			break
		}
		out = append(out, cands...)
	}
	return out, nil
}

// extract runs one model pass over the gathered text.
func (a *AIAdapter) extract(ctx context.Context, q Query, text string) ([]model.Candidate, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    extractSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: "Organization: " + q.Org.Name + "\n\nPage text:\n" + text},
		},
	})
	if err != nil {
		return nil, classifyAnthropicErr(err)
	}
	resp.Usage.LogCost(a.model, "extract")

	fields, err := parseExtraction(resp.Text())
	if err != nil {
		// A malformed completion is worth one immediate re-ask.
		return nil, resilience.NewFailure(err, resilience.ClassValidation)
	}

	now := time.Now().UTC()
	var out []model.Candidate
	for key, ext := range fields {
		fk := model.FieldKey(key)
		if !fk.Valid() || !q.Wants(fk) || ext.Value == "" {
			continue
		}
		conf := ext.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.3
		}
		out = append(out, model.Candidate{
			Field:         fk,
			Value:         ext.Value,
			Source:        NameAI,
			RawConfidence: conf,
			ObservedAt:    now,
		})
	}
	return out, nil
}

// gatherText collects page text for extraction: the homepage when the
// record has one, otherwise the top web-search snippets.
func (a *AIAdapter) gatherText(ctx context.Context, q Query) (string, error) {
	if hp, ok := q.Org.Field(model.FieldHomepage); ok {
		read, err := a.reader.Read(ctx, hp.Value)
		if err != nil {
			return "", wrapStatus(err)
		}
		return read.Data.Content, nil
	}

	resp, err := a.reader.Search(ctx, q.Org.Name+" 연락처")
	if err != nil {
		return "", wrapStatus(err)
	}
	var sb strings.Builder
	for i, r := range resp.Data {
		if i >= 3 {
			break
		}
		sb.WriteString(r.Title)
		sb.WriteString("\n")
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

type extractedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// parseExtraction pulls the JSON object out of the completion, tolerating
// code fences around it.
func parseExtraction(text string) (map[string]extractedField, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("ai_extract: no JSON object in completion: %.120s", text)
	}

	var fields map[string]extractedField
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, eris.Wrap(err, "ai_extract: unmarshal completion")
	}
	return fields, nil
}

// classifyAnthropicErr maps SDK errors onto retry classes. The SDK does not
// expose a typed status error for all failure modes, so overloaded and
// rate-limit responses are recognized by message.
func classifyAnthropicErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate_limit"):
		return resilience.NewFailure(err, resilience.ClassRateLimit)
	case strings.Contains(msg, "529"), strings.Contains(msg, "overloaded"):
		return resilience.NewFailure(err, resilience.ClassNetwork)
	}
	return err
}
