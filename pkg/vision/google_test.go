package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGoogleDescriberDescribesImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			Contents []struct {
				Parts []map[string]interface{} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 2 {
			t.Errorf("expected text+inline_data parts, got %+v", req.Contents)
		}
		if _, ok := req.Contents[0].Parts[1]["inline_data"]; !ok {
			t.Errorf("expected an inline_data part")
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "a robot charging station"}},
				}},
			},
		})
	}))
	defer server.Close()

	d := &GoogleDescriber{apiKey: "test-key", url: server.URL, model: "gemini-1.5-flash"}
	desc, err := d.DescribeImage(context.Background(), []byte{0x89, 0x50}, "image/png", "describe this view")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc != "a robot charging station" {
		t.Errorf("unexpected description: %q", desc)
	}
	if d.Name() != "google-vision" {
		t.Errorf("expected google-vision, got %s", d.Name())
	}
}
