package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// AnthropicDescriber calls the Anthropic Messages API with an image content
// block. Its request plumbing (header setup, response decode) is retargeted
// to a single user-message image description request.
type AnthropicDescriber struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicDescriber(apiKey string, model string) *AnthropicDescriber {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicDescriber{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func (l *AnthropicDescriber) DescribeImage(ctx context.Context, imageData []byte, mimeType, prompt string) (string, error) {
	payload := map[string]interface{}{
		"model":      l.model,
		"max_tokens": 1024,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type": "image",
						"source": map[string]string{
							"type":       "base64",
							"media_type": mimeType,
							"data":       base64.StdEncoding.EncodeToString(imageData),
						},
					},
					{"type": "text", "text": prompt},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic vision error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from anthropic")
	}
	return result.Content[0].Text, nil
}

func (l *AnthropicDescriber) Name() string {
	return "anthropic-vision"
}
