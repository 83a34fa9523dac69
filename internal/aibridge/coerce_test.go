package aibridge

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestStripFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  x = 1 \n", "x = 1"},
		{"fenced", "```python\nx = 1\n```", "x = 1"},
		{"prose around", "Sure!\n```py\na\nb\n```\nDone.", "a\nb"},
		{"unterminated", "```\nx = 1", "x = 1"},
		{"inline", "```x```", "x"},
		{"trailing prose with backticks", "Here is the fix:\n```python\nimport scrapy\nx = 1\n```\n\nInstall with ```pip install pydrive2```.", "import scrapy\nx = 1"},
		{"inline backticks inside block", "```python\ns = \"```\"\nx = 1\n```\nNote: `x` is set.", "s = \"```\"\nx = 1"},
		{"second block ignored", "```py\na\n```\nthen\n```py\nb\n```", "a"},
		{"unterminated with prose before", "Code:\n```python\nimport scrapy\n", "import scrapy"},
		{"indented closing fence", "```py\na\n  ```  \nbye", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestResponseTextSkipsThoughts(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "pondering", Thought: true},
			{Text: "answer "},
			nil,
			{Text: "part two"},
		}},
	}}}
	require.Equal(t, "answer part two", responseText(resp))
	require.Empty(t, responseText(nil))
	require.Empty(t, responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))
}

func TestDecodeIntentLenient(t *testing.T) {
	t.Parallel()

	got := decodeIntent("```json\n{\"suggested_name\": 42, \"fields_to_extract\": \"price, title,price\", " +
		"\"difficulty_rating\": \"0\"}\n```")
	require.Equal(t, "42", got.SuggestedName)
	require.Equal(t, []string{"price", "title"}, got.Fields)
	require.InDelta(t, 1, got.Difficulty, 0.001)

	require.True(t, decodeIntent("[1,2]").Empty())
	require.InDelta(t, 0, decodeIntent(`{"difficulty_rating": "hard"}`).Difficulty, 0.001)
}

func TestRowKeyOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"array", `[{"zeta":1,"alpha":{"nested":1},"mid":[1,{"deep":2}]},{"new":1,"zeta":2}]`, []string{"zeta", "alpha", "mid", "new"}},
		{"wrapped", `{"results":[{"b":"1","a":"2"}]}`, []string{"b", "a"}},
		{"malformed tail", `[{"b":1,"a":`, []string{"b", "a"}},
		{"not json", `hello`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, rowKeyOrder(tt.in))
		})
	}
}

func TestDecodeRowsWrappedObject(t *testing.T) {
	t.Parallel()

	rows := decodeRows(`{"results":[{"title":"A","price":null}]}`)
	require.Len(t, rows, 1)
	require.Equal(t, "A", rows[0]["title"])
	_, hasPrice := rows[0]["price"]
	require.False(t, hasPrice)

	require.Empty(t, decodeRows(`"just a string"`))
}
