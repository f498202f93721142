// Package kinds holds the built-in job handlers shipped with the service.
// Real deployments register their own.
package kinds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"artifact-job-service/internal/registry"
)

func RegisterBuiltin(reg *registry.Registry) error {
	if err := reg.Register("echo", Echo); err != nil {
		return err
	}
	return reg.Register("process_text", ProcessText)
}

type echoPayload struct {
	Text string `json:"text"`
}

// Echo returns the submitted text as a plain-text artifact.
func Echo(ctx context.Context, payload json.RawMessage) (*registry.Result, error) {
	var p echoPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if p.Text == "" {
		return nil, errors.New("text is required in payload")
	}

	return &registry.Result{
		Data:        []byte(p.Text),
		ContentType: "text/plain",
		Filename:    timestamped("echo", "txt"),
	}, nil
}

type processTextPayload struct {
	Text      string `json:"text"`
	Operation string `json:"operation"`
	Format    string `json:"format"`
}

type textStats struct {
	CharCount   int `json:"char_count"`
	WordCount   int `json:"word_count"`
	LineCount   int `json:"line_count"`
	UniqueWords int `json:"unique_words"`
}

// ProcessText applies a text transformation (uppercase, lowercase, reverse,
// title, count_vowels, stats or all) and renders the result as json, md or
// txt.
func ProcessText(ctx context.Context, payload json.RawMessage) (*registry.Result, error) {
	var p processTextPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if p.Text == "" {
		return nil, errors.New("text is required in payload")
	}

	op := strings.ToLower(p.Operation)
	if op == "" {
		op = "stats"
	}

	results := map[string]any{}
	switch op {
	case "uppercase":
		results["uppercase"] = strings.ToUpper(p.Text)
	case "lowercase":
		results["lowercase"] = strings.ToLower(p.Text)
	case "reverse":
		results["reverse"] = reverse(p.Text)
	case "title":
		results["title_case"] = titleCase(p.Text)
	case "count_vowels":
		results["vowel_count"] = countVowels(p.Text)
	case "stats":
		results["stats"] = stats(p.Text)
	case "all":
		results["uppercase"] = strings.ToUpper(p.Text)
		results["lowercase"] = strings.ToLower(p.Text)
		results["reverse"] = reverse(p.Text)
		results["stats"] = stats(p.Text)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}

	switch strings.ToLower(p.Format) {
	case "json":
		out, err := json.MarshalIndent(map[string]any{
			"original_text": p.Text,
			"operation":     op,
			"results":       results,
			"processed_at":  time.Now().UTC().Format(time.RFC3339),
		}, "", "  ")
		if err != nil {
			return nil, err
		}
		return &registry.Result{
			Data:        out,
			ContentType: "application/json",
			Filename:    timestamped("text_processing", "json"),
		}, nil
	case "md":
		return &registry.Result{
			Data:        renderMarkdown(p.Text, op, results),
			ContentType: "text/markdown",
			Filename:    timestamped("text_processing", "md"),
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TEXT PROCESSING RESULTS\noperation: %s\n\n%s\n\n", op, p.Text)
	for _, k := range []string{"uppercase", "lowercase", "reverse", "title_case"} {
		if v, ok := results[k]; ok {
			fmt.Fprintf(&b, "%s:\n%s\n\n", k, v)
		}
	}
	if v, ok := results["vowel_count"]; ok {
		fmt.Fprintf(&b, "vowel_count: %d\n", v)
	}
	if v, ok := results["stats"]; ok {
		s := v.(textStats)
		fmt.Fprintf(&b, "stats:\n  chars: %d\n  words: %d\n  lines: %d\n  unique words: %d\n",
			s.CharCount, s.WordCount, s.LineCount, s.UniqueWords)
	}

	return &registry.Result{
		Data:        []byte(b.String()),
		ContentType: "text/plain",
		Filename:    timestamped("text_processing", "txt"),
	}, nil
}

func renderMarkdown(text, op string, results map[string]any) []byte {
	var b strings.Builder
	b.WriteString("# Text Processing Results\n\n")
	fmt.Fprintf(&b, "**Operation:** %s\n\n", op)
	fmt.Fprintf(&b, "## Original Text\n\n```\n%s\n```\n\n## Results\n", text)

	for _, k := range []string{"uppercase", "lowercase", "reverse", "title_case"} {
		if v, ok := results[k]; ok {
			fmt.Fprintf(&b, "\n### %s\n\n```\n%s\n```\n", titleCase(strings.ReplaceAll(k, "_", " ")), v)
		}
	}
	if v, ok := results["vowel_count"]; ok {
		fmt.Fprintf(&b, "\n### Vowel Count\n\n%d\n", v)
	}
	if v, ok := results["stats"]; ok {
		s := v.(textStats)
		b.WriteString("\n### Statistics\n\n")
		fmt.Fprintf(&b, "- **Char Count:** %d\n", s.CharCount)
		fmt.Fprintf(&b, "- **Word Count:** %d\n", s.WordCount)
		fmt.Fprintf(&b, "- **Line Count:** %d\n", s.LineCount)
		fmt.Fprintf(&b, "- **Unique Words:** %d\n", s.UniqueWords)
	}

	return []byte(b.String())
}

func stats(text string) textStats {
	words := strings.Fields(text)
	unique := map[string]struct{}{}
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	return textStats{
		CharCount:   len([]rune(text)),
		WordCount:   len(words),
		LineCount:   strings.Count(text, "\n") + 1,
		UniqueWords: len(unique),
	}
}

// titleCase uppercases the first letter of every run of letters and lowers
// the rest, so "hello world" becomes "Hello World".
func titleCase(s string) string {
	r := []rune(s)
	inWord := false
	for i, c := range r {
		if unicode.IsLetter(c) {
			if inWord {
				r[i] = unicode.ToLower(c)
			} else {
				r[i] = unicode.ToUpper(c)
			}
			inWord = true
		} else {
			inWord = false
		}
	}
	return string(r)
}

func countVowels(s string) int {
	n := 0
	for _, c := range s {
		switch c {
		case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
			n++
		}
	}
	return n
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func timestamped(prefix, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().UTC().Format("20060102_150405"), ext)
}
