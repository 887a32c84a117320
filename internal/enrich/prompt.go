package enrich

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bihua-university/melodex/internal/ai"
	"github.com/bihua-university/melodex/internal/label"
	"github.com/bihua-university/melodex/internal/library"
)

// ErrBadReply marks an AI reply that arrived but could not be used.
var ErrBadReply = errors.New("enrich: unusable ai reply")

const infoSystem = `You are a professional music critic. Describe the given song.
Return ONLY a valid JSON object (no markdown, no explanations):
{
  "summary": "2-3 sentence description of the song",
  "background": "how and when it was written or recorded",
  "lyrics_comment": "short interpretation of the lyrics"
}`

const recommendSystem = `You are a friendly radio host. In at most three sentences,
tell the listener why today's song is worth hearing. Reply with plain text only.`

func describe(m *library.Music, lyrics string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Song: %s\n", m.Title)
	if m.Artist != "" {
		fmt.Fprintf(&b, "Artist: %s\n", m.Artist)
	}
	if m.Album != "" {
		fmt.Fprintf(&b, "Album: %s\n", m.Album)
	}
	if lyrics = strings.TrimSpace(lyrics); lyrics != "" {
		if r := []rune(lyrics); len(r) > 2000 {
			lyrics = string(r[:2000])
		}
		fmt.Fprintf(&b, "\nLyrics:\n%s\n", lyrics)
	}
	return b.String()
}

func infoRequest(m *library.Music, lyrics string, temperature float64) ai.ChatRequest {
	return ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: infoSystem},
			{Role: ai.RoleUser, Content: describe(m, lyrics)},
		},
		Temperature:    temperature,
		ResponseFormat: &ai.ResponseFormat{Type: "json_object"},
	}
}

func labelSystem() string {
	var b strings.Builder
	b.WriteString("You are a music tagging assistant. Classify the given song.\n")
	b.WriteString("Return ONLY a valid JSON object whose keys are the categories below and whose values are arrays picked from the allowed values:\n")
	for _, c := range label.Categories() {
		names := label.Names(c)
		values := make([]string, len(names))
		for i, n := range names {
			values[i] = string(n)
		}
		fmt.Fprintf(&b, "- %s: %s\n", strings.ToLower(string(c)), strings.Join(values, ", "))
	}
	b.WriteString("Use 1-3 values per category.")
	return b.String()
}

func labelRequest(m *library.Music, temperature float64) ai.ChatRequest {
	return ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: labelSystem()},
			{Role: ai.RoleUser, Content: describe(m, "")},
		},
		Temperature:    temperature,
		ResponseFormat: &ai.ResponseFormat{Type: "json_object"},
	}
}

func recommendRequest(m *library.Music, temperature float64) ai.ChatRequest {
	return ai.ChatRequest{
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: recommendSystem},
			{Role: ai.RoleUser, Content: describe(m, "")},
		},
		Temperature: temperature,
	}
}

type info struct {
	Summary       string
	Background    string
	LyricsComment string
}

// stripFence removes a surrounding markdown code block if present.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func parseInfo(content string) (info, error) {
	body := stripFence(content)
	if !gjson.Valid(body) {
		if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
			body = body[i : j+1]
		}
	}
	if !gjson.Valid(body) {
		return info{}, fmt.Errorf("%w: not json", ErrBadReply)
	}

	g := gjson.Parse(body)
	v := info{
		Summary:       strings.TrimSpace(g.Get("summary").String()),
		Background:    strings.TrimSpace(g.Get("background").String()),
		LyricsComment: strings.TrimSpace(firstOf(g, "lyrics_comment", "lyricsComment", "lyrics")),
	}
	if v.Summary == "" {
		return info{}, fmt.Errorf("%w: missing summary", ErrBadReply)
	}
	return v, nil
}

func firstOf(g gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := g.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}

func parseLabels(content string) ([]label.Assignment, error) {
	as := label.MapAll(label.ParseCategories(content))
	if len(as) == 0 {
		return nil, fmt.Errorf("%w: no label categories", ErrBadReply)
	}
	return as, nil
}
