package kinds_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"artifact-job-service/internal/kinds"
	"artifact-job-service/internal/registry"
)

func TestEcho_ReturnsTextAsArtifact(t *testing.T) {
	res, err := kinds.Echo(context.Background(), json.RawMessage(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(res.Data) != "hello" {
		t.Fatalf("expected echoed bytes, got %q", res.Data)
	}
	if res.ContentType != "text/plain" {
		t.Fatalf("expected text/plain, got %q", res.ContentType)
	}
	if !strings.HasSuffix(res.Filename, ".txt") {
		t.Fatalf("expected .txt filename, got %q", res.Filename)
	}
}

func TestEcho_MissingTextRejected(t *testing.T) {
	if _, err := kinds.Echo(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing text")
	}
}

func TestProcessText_StatsJSON(t *testing.T) {
	payload := json.RawMessage(`{"text":"one two two\nthree","operation":"stats","format":"json"}`)
	res, err := kinds.ProcessText(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.ContentType != "application/json" {
		t.Fatalf("expected application/json, got %q", res.ContentType)
	}

	var out struct {
		Results struct {
			Stats struct {
				WordCount   int `json:"word_count"`
				LineCount   int `json:"line_count"`
				UniqueWords int `json:"unique_words"`
			} `json:"stats"`
		} `json:"results"`
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if out.Results.Stats.WordCount != 4 || out.Results.Stats.LineCount != 2 || out.Results.Stats.UniqueWords != 3 {
		t.Fatalf("unexpected stats: %+v", out.Results.Stats)
	}
}

func TestProcessText_UppercaseTxt(t *testing.T) {
	payload := json.RawMessage(`{"text":"hi","operation":"uppercase"}`)
	res, err := kinds.ProcessText(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(string(res.Data), "HI") {
		t.Fatalf("expected uppercased text in output, got %q", res.Data)
	}
}

func TestProcessText_TitleCaseJSON(t *testing.T) {
	payload := json.RawMessage(`{"text":"hello world","operation":"title","format":"json"}`)
	res, err := kinds.ProcessText(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	var out struct {
		Results struct {
			TitleCase string `json:"title_case"`
		} `json:"results"`
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if out.Results.TitleCase != "Hello World" {
		t.Fatalf("expected title case, got %q", out.Results.TitleCase)
	}
}

func TestProcessText_CountVowelsJSON(t *testing.T) {
	payload := json.RawMessage(`{"text":"Queueing","operation":"count_vowels","format":"json"}`)
	res, err := kinds.ProcessText(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	var out struct {
		Results struct {
			VowelCount int `json:"vowel_count"`
		} `json:"results"`
	}
	if err := json.Unmarshal(res.Data, &out); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if out.Results.VowelCount != 5 {
		t.Fatalf("expected 5 vowels, got %d", out.Results.VowelCount)
	}
}

func TestProcessText_MarkdownFormat(t *testing.T) {
	payload := json.RawMessage(`{"text":"one two two","operation":"all","format":"md"}`)
	res, err := kinds.ProcessText(context.Background(), payload)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.ContentType != "text/markdown" {
		t.Fatalf("expected text/markdown, got %q", res.ContentType)
	}
	if !strings.HasSuffix(res.Filename, ".md") {
		t.Fatalf("expected .md filename, got %q", res.Filename)
	}
	out := string(res.Data)
	for _, want := range []string{"# Text Processing Results", "## Original Text", "### Uppercase", "### Statistics", "- **Word Count:** 3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestProcessText_UnknownOperationRejected(t *testing.T) {
	payload := json.RawMessage(`{"text":"hi","operation":"rot13"}`)
	if _, err := kinds.ProcessText(context.Background(), payload); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestRegisterBuiltin(t *testing.T) {
	reg := registry.New()
	if err := kinds.RegisterBuiltin(reg); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, k := range []string{"echo", "process_text"} {
		if !reg.Has(k) {
			t.Fatalf("expected builtin kind %q", k)
		}
	}
}
