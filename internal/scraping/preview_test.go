package scraping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPreviewTableHeterogeneousRows(t *testing.T) {
	t.Parallel()

	table := NewPreviewTable([]PreviewRow{
		{"title": "Condo", "price": "1,200,000"},
		{},
		{"price": "980,000", "bedrooms": "2"},
		{"url": "https://example.com/3"},
	})

	require.Equal(t, []string{"price", "title", "bedrooms", "url"}, table.Columns)
	require.Len(t, table.Rows, 3)
	require.Equal(t, "", table.Cell(1, "title"))
	require.Equal(t, "2", table.Cell(1, "bedrooms"))
	require.Equal(t, "", table.Cell(9, "title"))
	require.False(t, table.Empty())
}

func TestNewPreviewTableKeepsGivenOrder(t *testing.T) {
	t.Parallel()

	table := NewPreviewTable([]PreviewRow{
		{"title": "Condo", "price": "1,200,000", "url": "u1"},
		{"price": "980,000", "bedrooms": "2"},
	}, "title", "price", "missing", "url")

	require.Equal(t, []string{"title", "price", "url", "bedrooms"}, table.Columns)
}

func TestNewPreviewTableEmpty(t *testing.T) {
	t.Parallel()

	table := NewPreviewTable(nil)
	require.True(t, table.Empty())
	require.NotNil(t, table.Columns)
	require.NotNil(t, table.Rows)
}
