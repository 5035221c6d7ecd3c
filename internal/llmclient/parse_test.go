package llmclient

import "testing"

type decodeTarget struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

func TestDecodeJSON_PlainObject(t *testing.T) {
	got, err := DecodeJSON[decodeTarget](`{"summary": "ok", "tags": ["a", "b"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "ok" || len(got.Tags) != 2 {
		t.Fatalf("unexpected decode result: %+v", got)
	}
}

func TestDecodeJSON_MarkdownFence(t *testing.T) {
	resp := "```json\n{\"summary\": \"fenced\", \"tags\": []}\n```"
	got, err := DecodeJSON[decodeTarget](resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "fenced" {
		t.Fatalf("expected fenced, got %q", got.Summary)
	}
}

func TestDecodeJSON_TrailingProse(t *testing.T) {
	resp := `Here is the result: {"summary": "trailing", "tags": ["x"]} -- hope that helps!`
	got, err := DecodeJSON[decodeTarget](resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "trailing" {
		t.Fatalf("expected trailing, got %q", got.Summary)
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	if _, err := DecodeJSON[decodeTarget]("no json here"); err == nil {
		t.Fatal("expected error for non-JSON input")
	}
}

func TestExtractFirstJSONObject_NestedBraces(t *testing.T) {
	s := `prefix {"a": {"b": 1}, "c": "}"} suffix`
	obj, ok := extractFirstJSONObject(s)
	if !ok {
		t.Fatal("expected to find a balanced object")
	}
	if obj != `{"a": {"b": 1}, "c": "}"}` {
		t.Fatalf("unexpected extracted object: %s", obj)
	}
}
