package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAIDescriber calls the OpenAI Chat Completions API with an image
// content part to produce a text description of a camera snapshot. Its
// request/response plumbing is retargeted from multi-turn chat completion
// to single-shot image description.
type OpenAIDescriber struct {
	apiKey string
	url    string
	model  string
}

func NewOpenAIDescriber(apiKey string, model string) *OpenAIDescriber {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIDescriber{
		apiKey: apiKey,
		url:    "https://api.openai.com/v1/chat/completions",
		model:  model,
	}
}

func (l *OpenAIDescriber) DescribeImage(ctx context.Context, imageData []byte, mimeType, prompt string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageData)

	payload := map[string]interface{}{
		"model": l.model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
					{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
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
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai vision error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}
	return result.Choices[0].Message.Content, nil
}

func (l *OpenAIDescriber) Name() string {
	return "openai-vision"
}
