package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

// Provider adapts the neutral ChatRequest/ChatResponse pair to one
// vendor's wire format.
type Provider interface {
	Name() string
	DefaultBaseURL() string
	DefaultModel() string
	Path(model string) string
	Authorize(r *req.Request, token string)
	Encode(cr ChatRequest) ([]byte, error)
	// Decode returns an *Error when the body carries a vendor error
	// object, and a plain error when the body is unusable.
	Decode(body []byte) (*ChatResponse, error)
}

const (
	DeepSeek = "deepseek"
	OpenAI   = "openai"
	Claude   = "claude"
	Qwen     = "qwen"
	Ernie    = "ernie"
)

var providers = map[string]Provider{
	DeepSeek: openAICompatible{name: DeepSeek, baseURL: "https://api.deepseek.com", model: "deepseek-chat"},
	OpenAI:   openAICompatible{name: OpenAI, baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	Claude:   claude{},
	Qwen:     qwen{},
	Ernie:    ernie{},
}

// ProviderByName looks a provider up case-insensitively.
func ProviderByName(name string) (Provider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("ai: unknown provider %q", name)
	}
	return p, nil
}

// ProviderNames lists the supported provider identifiers.
func ProviderNames() []string {
	return []string{DeepSeek, OpenAI, Claude, Qwen, Ernie}
}

var errNoContent = errors.New("response carries no message content")

func validJSON(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, errors.New("response is not valid JSON")
	}
	return gjson.ParseBytes(body), nil
}

// splitSystem hoists system messages out for vendors that take the
// system prompt as a separate field.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n"), rest
}

// openAICompatible covers OpenAI and DeepSeek, which share one shape.
type openAICompatible struct {
	name    string
	baseURL string
	model   string
}

func (p openAICompatible) Name() string           { return p.name }
func (p openAICompatible) DefaultBaseURL() string { return p.baseURL }
func (p openAICompatible) DefaultModel() string   { return p.model }
func (p openAICompatible) Path(string) string     { return "/chat/completions" }

func (p openAICompatible) Encode(cr ChatRequest) ([]byte, error) {
	return json.Marshal(cr)
}

func (p openAICompatible) Authorize(r *req.Request, token string) {
	r.SetBearerAuthToken(token)
}

func (p openAICompatible) Decode(body []byte) (*ChatResponse, error) {
	g, err := validJSON(body)
	if err != nil {
		return nil, err
	}
	if e := g.Get("error"); e.Exists() && e.Type != gjson.Null {
		return nil, &Error{Kind: KindUnknown, Body: e.Get("message").String()}
	}
	choices := g.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return nil, errNoContent
	}
	resp := &ChatResponse{ID: g.Get("id").String()}
	for _, c := range choices.Array() {
		resp.Choices = append(resp.Choices, Choice{
			Index: int(c.Get("index").Int()),
			Message: Message{
				Role:    c.Get("message.role").String(),
				Content: c.Get("message.content").String(),
			},
		})
	}
	return resp, nil
}

type claude struct{}

func (claude) Name() string           { return Claude }
func (claude) DefaultBaseURL() string { return "https://api.anthropic.com" }
func (claude) DefaultModel() string   { return "claude-3-5-haiku-latest" }
func (claude) Path(string) string     { return "/v1/messages" }

func (claude) Authorize(r *req.Request, token string) {
	r.SetHeader("x-api-key", token)
	r.SetHeader("anthropic-version", "2023-06-01")
}

func (claude) Encode(cr ChatRequest) ([]byte, error) {
	system, msgs := splitSystem(cr.Messages)
	return json.Marshal(struct {
		Model       string    `json:"model"`
		MaxTokens   int       `json:"max_tokens"`
		System      string    `json:"system,omitempty"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}{cr.Model, 2048, system, msgs, cr.Temperature})
}

func (claude) Decode(body []byte) (*ChatResponse, error) {
	g, err := validJSON(body)
	if err != nil {
		return nil, err
	}
	if g.Get("type").String() == "error" {
		return nil, &Error{Kind: KindUnknown, Body: g.Get("error.message").String()}
	}
	var text []string
	g.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text = append(text, block.Get("text").String())
		}
		return true
	})
	if len(text) == 0 {
		return nil, errNoContent
	}
	return &ChatResponse{
		ID: g.Get("id").String(),
		Choices: []Choice{{
			Message: Message{Role: RoleAssistant, Content: strings.Join(text, "")},
		}},
	}, nil
}

// qwen speaks the DashScope text-generation API.
type qwen struct{}

func (qwen) Name() string           { return Qwen }
func (qwen) DefaultBaseURL() string { return "https://dashscope.aliyuncs.com/api/v1" }
func (qwen) DefaultModel() string   { return "qwen-plus" }
func (qwen) Path(string) string     { return "/services/aigc/text-generation/generation" }

func (qwen) Authorize(r *req.Request, token string) {
	r.SetBearerAuthToken(token)
}

func (qwen) Encode(cr ChatRequest) ([]byte, error) {
	type input struct {
		Messages []Message `json:"messages"`
	}
	type parameters struct {
		Temperature  float64 `json:"temperature"`
		ResultFormat string  `json:"result_format"`
	}
	return json.Marshal(struct {
		Model      string     `json:"model"`
		Input      input      `json:"input"`
		Parameters parameters `json:"parameters"`
	}{cr.Model, input{cr.Messages}, parameters{cr.Temperature, "message"}})
}

func (qwen) Decode(body []byte) (*ChatResponse, error) {
	g, err := validJSON(body)
	if err != nil {
		return nil, err
	}
	if code := g.Get("code").String(); code != "" {
		return nil, &Error{Kind: KindUnknown, Body: code + ": " + g.Get("message").String()}
	}
	content := g.Get("output.choices.0.message.content")
	if !content.Exists() {
		// older result_format=text responses
		content = g.Get("output.text")
	}
	if !content.Exists() {
		return nil, errNoContent
	}
	return &ChatResponse{
		ID: g.Get("request_id").String(),
		Choices: []Choice{{
			Message: Message{Role: RoleAssistant, Content: content.String()},
		}},
	}, nil
}

// ernie speaks the Baidu Qianfan wenxinworkshop chat API, where the model
// is part of the path.
type ernie struct{}

func (ernie) Name() string { return Ernie }
func (ernie) DefaultBaseURL() string {
	return "https://aip.baidubce.com/rpc/2.0/ai_custom/v1/wenxinworkshop"
}
func (ernie) DefaultModel() string     { return "completions" }
func (ernie) Path(model string) string { return "/chat/" + model }

func (ernie) Authorize(r *req.Request, token string) {
	r.SetBearerAuthToken(token)
}

func (ernie) Encode(cr ChatRequest) ([]byte, error) {
	system, msgs := splitSystem(cr.Messages)
	return json.Marshal(struct {
		Messages    []Message `json:"messages"`
		System      string    `json:"system,omitempty"`
		Temperature float64   `json:"temperature"`
	}{msgs, system, cr.Temperature})
}

func (ernie) Decode(body []byte) (*ChatResponse, error) {
	g, err := validJSON(body)
	if err != nil {
		return nil, err
	}
	// Qianfan reports failures with HTTP 200 and an error_code.
	if code := g.Get("error_code").Int(); code != 0 {
		kind := KindUnknown
		switch code {
		case 110, 111:
			kind = KindAuth
		case 4, 17, 18:
			kind = KindRateLimit
		}
		return nil, &Error{Kind: kind, Body: g.Get("error_msg").String()}
	}
	result := g.Get("result")
	if !result.Exists() {
		return nil, errNoContent
	}
	return &ChatResponse{
		ID: g.Get("id").String(),
		Choices: []Choice{{
			Message: Message{Role: RoleAssistant, Content: result.String()},
		}},
	}, nil
}
