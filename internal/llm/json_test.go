package llm

import (
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	if got := StripCodeFences("```json\n{\"ok\": true}\n```"); got != `{"ok": true}` {
		t.Errorf("fenced: got %q", got)
	}
	if got := StripCodeFences(`{"ok": true}`); got != `{"ok": true}` {
		t.Errorf("unfenced: got %q", got)
	}
}

func TestDecodeJSONResponse(t *testing.T) {
	var out struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	text := "```json\n{\"title\": \"Report\", \"tags\": [\"a\", \"b\"]}\n```"
	if err := DecodeJSONResponse(text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Title != "Report" || len(out.Tags) != 2 {
		t.Errorf("unexpected decode result: %+v", out)
	}
}

func TestDecodeJSONResponseLeadingProse(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	text := "Here is the JSON you asked for:\n{\"ok\": true}"
	if err := DecodeJSONResponse(text, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK {
		t.Error("expected ok=true")
	}
}

func TestDecodeJSONResponseErrors(t *testing.T) {
	var out map[string]any
	if err := DecodeJSONResponse("", &out); err == nil {
		t.Error("expected error for empty response")
	}
	if err := DecodeJSONResponse("{broken", &out); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
