package aibridge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/JakeFAU/ai-scrapy-dashboard/internal/scraping"
)

// responseText concatenates the text parts of the first candidate, skipping thought parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// groundingSources returns the web citations of the first candidate, deduplicated by URI.
func groundingSources(resp *genai.GenerateContentResponse) []scraping.Source {
	out := []scraping.Source{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return out
	}
	seen := make(map[string]struct{})
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, dup := seen[chunk.Web.URI]; dup {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}
		title := strings.TrimSpace(chunk.Web.Title)
		if title == "" {
			title = chunk.Web.URI
		}
		out = append(out, scraping.Source{URI: chunk.Web.URI, Title: title})
	}
	return out
}

// stripFence unwraps the first fenced code block, or returns the trimmed text when there is none.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	open := strings.Index(text, "```")
	if open == -1 {
		return text
	}
	body := text[open+3:]
	nl := strings.IndexByte(body, '\n')
	if nl == -1 {
		return strings.TrimSpace(strings.Trim(body, "`"))
	}
	lines := strings.Split(body[nl+1:], "\n")
	for i, line := range lines {
		// The block ends at the first bare fence line; anything after it is prose.
		if strings.TrimSpace(line) == "```" {
			lines = lines[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func decodeIntent(text string) scraping.IntentSuggestion {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return scraping.IntentSuggestion{}
	}
	s := scraping.IntentSuggestion{
		SuggestedName: strings.TrimSpace(scalarString(raw["suggested_name"])),
		FrequencyHint: strings.TrimSpace(scalarString(raw["frequency_hint"])),
		Fields:        fieldList(raw["fields_to_extract"]),
	}
	if d, ok := number(raw["difficulty_rating"]); ok {
		s.Difficulty = math.Min(10, math.Max(1, d))
	}
	return s
}

func decodeRows(text string) []scraping.PreviewRow {
	var raw any
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return nil
	}
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		// Some answers wrap the array in a single-key object.
		for _, inner := range v {
			if arr, ok := inner.([]any); ok {
				items = arr
				break
			}
		}
	}
	rows := make([]scraping.PreviewRow, 0, scraping.MaxPreviewRows)
	for _, item := range items {
		if len(rows) == scraping.MaxPreviewRows {
			break
		}
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := scraping.PreviewRow{}
		for k, v := range obj {
			k = strings.TrimSpace(k)
			if k == "" || v == nil {
				continue
			}
			row[k] = scalarString(v)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// rowKeyOrder lists the keys of objects that sit directly inside an array,
// in document order. Map decoding loses this order.
func rowKeyOrder(text string) []string {
	var (
		stack []jsonFrame
		order []string
		seen  = make(map[string]struct{})
	)
	dec := json.NewDecoder(strings.NewReader(text))
	for {
		tok, err := dec.Token()
		if err != nil {
			return order
		}
		var top *jsonFrame
		if len(stack) > 0 {
			top = &stack[len(stack)-1]
		}
		if top != nil && top.object && top.keyNext {
			if key, ok := tok.(string); ok {
				top.keyNext = false
				key = strings.TrimSpace(key)
				if _, dup := seen[key]; isRowObject(stack) && key != "" && !dup {
					seen[key] = struct{}{}
					order = append(order, key)
				}
				continue
			}
		}
		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			stack = stack[:len(stack)-1]
			continue
		}
		// Any other token is a value; inside an object a key comes next.
		if top != nil && top.object {
			top.keyNext = true
		}
		if d, ok := tok.(json.Delim); ok {
			stack = append(stack, jsonFrame{object: d == '{', keyNext: d == '{'})
		}
	}
}

type jsonFrame struct {
	object  bool
	keyNext bool
}

// isRowObject reports whether the innermost frame is an object inside the
// top-level array, or inside an array held by a top-level object.
func isRowObject(stack []jsonFrame) bool {
	switch len(stack) {
	case 2:
		return !stack[0].object && stack[1].object
	case 3:
		return stack[0].object && !stack[1].object && stack[2].object
	default:
		return false
	}
}

func fieldList(v any) []string {
	var candidates []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if item != nil {
				candidates = append(candidates, scalarString(item))
			}
		}
	case string:
		candidates = strings.Split(t, ",")
	}
	out := []string{}
	seen := make(map[string]struct{})
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
