package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ndemidova/callline/internal/calltask"
)

const systemPrompt = `You are a call-planning assistant. The user wants an outbound phone call placed on their behalf. Turn their instruction into a call plan.

Rules:
- goal: one sentence describing what the call must achieve. Never empty.
- steps: the ordered talking points for the call.
- questions: clarifying questions for the user, only when the instruction is ambiguous.
- missing_info: concrete items the user must supply before the call can happen (a phone number counts only if no contact matches).
- contact_info: when a known contact clearly matches the instruction, copy their name and phone.
- requires_clarification: true only when the call cannot proceed without user input.
- tone, max_price, hard_constraints, soft_preferences: extract when stated, otherwise leave empty.

Output ONLY a JSON object (no markdown, no prose):
{
  "goal": "...",
  "steps": ["..."],
  "questions": [],
  "missing_info": [],
  "contact_info": {"name": "...", "phone": "..."},
  "tone": "",
  "max_price": 0,
  "hard_constraints": {},
  "soft_preferences": {},
  "requires_clarification": false
}`

// OpenAI plans through any OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewOpenAI(cfg Config) *OpenAI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}
}

var _ Planner = (*OpenAI)(nil)

func (p *OpenAI) Plan(ctx context.Context, instruction string, profile calltask.Profile, contacts []calltask.Contact) (*calltask.Plan, error) {
	userPrompt, err := buildUserPrompt(instruction, profile, contacts)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("planner completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("planner returned no choices")
	}

	return parsePlan(resp.Choices[0].Message.Content)
}

func buildUserPrompt(instruction string, profile calltask.Profile, contacts []calltask.Contact) (string, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("marshal profile: %w", err)
	}
	contactsJSON, err := json.Marshal(contacts)
	if err != nil {
		return "", fmt.Errorf("marshal contacts: %w", err)
	}

	return fmt.Sprintf("Instruction: %s\n\nUser profile:\n%s\n\nKnown contacts:\n%s",
		instruction, profileJSON, contactsJSON), nil
}

func parsePlan(raw string) (*calltask.Plan, error) {
	raw = stripCodeFence(raw)

	var plan calltask.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}

	if strings.TrimSpace(plan.Goal) == "" {
		return nil, fmt.Errorf("plan has empty goal")
	}

	normalize(&plan)
	return &plan, nil
}

// normalize guarantees the contract that lists and maps may be empty but are
// never absent.
func normalize(plan *calltask.Plan) {
	if plan.Steps == nil {
		plan.Steps = []string{}
	}
	if plan.Questions == nil {
		plan.Questions = []string{}
	}
	if plan.MissingInfo == nil {
		plan.MissingInfo = []string{}
	}
	if plan.HardConstraints == nil {
		plan.HardConstraints = map[string]string{}
	}
	if plan.SoftPreferences == nil {
		plan.SoftPreferences = map[string]string{}
	}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
