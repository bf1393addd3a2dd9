// Package classify calls an OpenAI-compatible chat completions API to
// categorize reply emails and extract replacement contact details.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Category is the triage outcome for one email.
type Category string

const (
	CategoryNotInterested  Category = "Not Interested"
	CategoryContactChanged Category = "Contact Changed"
	CategoryUnsubscribe    Category = "Unsubscribe"
	CategoryPrimary        Category = "Primary"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

const classifyPrompt = `You are an email classification assistant.

Classify the email content into ONE of the following four categories:

1. Not Interested
→ The sender is expressing disinterest in your offering, without explicitly using words like "unsubscribe".

2. Contact Changed
→ The sender has left the company or is no longer in the relevant role, and has provided a new contact to follow up with.

3. Unsubscribe
→ The sender is asking to stop receiving emails or expresses a desire to be removed from the mailing list. This includes phrases like "please remove me", "unsubscribe", or "do not include me in this campaign".

4. Primary
→ All other cases. These include general replies, interested leads, or emails that do not clearly fit in the first three categories.

---

Respond with ONLY the category name: Not Interested, Contact Changed, Unsubscribe, or Primary.

Here is the email:

"""%s"""`

const extractPrompt = `You are an assistant that extracts contact information from emails.

Given the following email content, extract the new contact's name and email address provided by the sender.

Email:
"""
%s
"""

Respond with ONLY a JSON object in the following format, no prose:
{"new_contact_name": "Full Name", "new_contact_email": "email@example.com"}
Use an empty string for any entry that is not found.`

// Contact is the replacement contact extracted from a contact-changed email.
type Contact struct {
	Name  string
	Email string
}

// Classifier wraps the completions API.
type Classifier struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// New creates a classifier. Empty baseURL and model fall back to defaults.
func New(apiKey, baseURL, model string) *Classifier {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Classifier{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Classify categorizes an email body. Unrecognized model output maps to
// CategoryPrimary; on transport failure the error is returned and callers
// fall back to CategoryPrimary themselves.
func (c *Classifier) Classify(ctx context.Context, body string) (Category, error) {
	out, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, body), 20)
	if err != nil {
		return CategoryPrimary, err
	}

	switch Category(strings.TrimSpace(out)) {
	case CategoryNotInterested:
		return CategoryNotInterested, nil
	case CategoryContactChanged:
		return CategoryContactChanged, nil
	case CategoryUnsubscribe:
		return CategoryUnsubscribe, nil
	default:
		return CategoryPrimary, nil
	}
}

// ExtractContact pulls the replacement contact from a contact-changed email.
// The model is instructed to answer with strict JSON; anything else is an
// error.
func (c *Classifier) ExtractContact(ctx context.Context, body string) (Contact, error) {
	out, err := c.complete(ctx, fmt.Sprintf(extractPrompt, body), 100)
	if err != nil {
		return Contact{}, err
	}

	// Models occasionally fence the JSON; strip the fences before decoding.
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")

	var parsed struct {
		Name  string `json:"new_contact_name"`
		Email string `json:"new_contact_email"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &parsed); err != nil {
		return Contact{}, fmt.Errorf("parse contact info: %w", err)
	}
	return Contact{Name: parsed.Name, Email: parsed.Email}, nil
}

// complete issues one chat completion and returns the first choice's text.
func (c *Classifier) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  maxTokens,
		"temperature": 0.3,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion request: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return out.Choices[0].Message.Content, nil
}
