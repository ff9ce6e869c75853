package chunker

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
)

func newChunker(t *testing.T, strategy Strategy, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(strategy, size, overlap, arbor.NewLogger())
	require.NoError(t, err)
	return c
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 0, EstimateTokens("   "))
	assert.Equal(t, 2, EstimateTokens("one"))          // ceil(1.3)
	assert.Equal(t, 13, EstimateTokens(strings.Repeat("word ", 10))) // ceil(13.0)
}

func TestNewRejectsBadConfig(t *testing.T) {
	logger := arbor.NewLogger()

	_, err := New(StrategyFixed, 0, 0, logger)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = New(StrategyFixed, 100, 100, logger)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = New(Strategy("mystery"), 100, 0, logger)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSemanticDegradesToSentence(t *testing.T) {
	c := newChunker(t, StrategySemantic, 100, 0)
	assert.Equal(t, StrategySentence, c.strategy)
}

func TestFixedWindowCoversAllWordsWithOverlap(t *testing.T) {
	c := newChunker(t, StrategyFixed, 26, 13) // 20-word window, 10-word overlap

	words := make([]string, 50)
	for i := range words {
		words[i] = "w" + string(rune('a'+i%26))
	}
	chunks := c.ChunkText(strings.Join(words, " "), "doc.txt")
	require.NotEmpty(t, chunks)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 26)
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, "doc.txt", chunk.Metadata["source"])
		assert.Equal(t, "doc.txt_"+strconv.Itoa(i), chunk.ChunkID)
	}

	// the last word of the input must land in the final chunk
	assert.Contains(t, chunks[len(chunks)-1].Text, words[len(words)-1])
}

func TestSentencePacking(t *testing.T) {
	c := newChunker(t, StrategySentence, 20, 0)

	text := "First sentence here. Second sentence follows! Third one asks? Fourth closes."
	chunks := c.ChunkText(text, "memo.txt")
	require.NotEmpty(t, chunks)

	var joined strings.Builder
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 20)
		joined.WriteString(chunk.Text)
		joined.WriteString(" ")
	}
	assert.Contains(t, joined.String(), "First sentence here.")
	assert.Contains(t, joined.String(), "Fourth closes.")
}

func TestRecursiveSplitsOversizedParagraphs(t *testing.T) {
	c := newChunker(t, StrategyRecursive, 15, 0)

	small := "Short paragraph."
	big := strings.Repeat("Many words fill this very long sentence span. ", 5)
	chunks := c.ChunkText(small+"\n\n"+big, "report.md")
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, 15)
	}
}

func TestEmptyInputYieldsNoChunks(t *testing.T) {
	c := newChunker(t, StrategyFixed, 100, 0)
	assert.Empty(t, c.ChunkText("", "x"))
	assert.Empty(t, c.ChunkText("   \n\n  ", "x"))
}

func TestChunkCSVRowWise(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loans.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,amount,status\n1,5000,current\n2,12000,late\n"), 0644))

	c := newChunker(t, StrategyFixed, 100, 0)
	chunks, err := c.ChunkFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "id: 1 | amount: 5000 | status: current", chunks[0].Text)
	assert.Equal(t, "loans.csv_0", chunks[0].ChunkID)
	assert.Equal(t, "loans.csv", chunks[0].Metadata["source"])
	assert.Equal(t, "0", chunks[0].Metadata["row"])
	assert.Equal(t, "id: 2 | amount: 12000 | status: late", chunks[1].Text)
}

func TestChunkJSONFlattensNestedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"limits":{"daily":500,"monthly":10000},"tags":["fraud","aml"]}`), 0644))

	c := newChunker(t, StrategySentence, 200, 0)
	chunks, err := c.ChunkFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Contains(t, chunks[0].Text, "limits_daily: 500")
	assert.Contains(t, chunks[0].Text, "limits_monthly: 10000")
	assert.Contains(t, chunks[0].Text, "tags_0: fraud")
}

func TestChunkFilePlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.log")
	require.NoError(t, os.WriteFile(path, []byte("Job started. Job finished."), 0644))

	c := newChunker(t, StrategySentence, 100, 0)
	chunks, err := c.ChunkFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "notes.log_0", chunks[0].ChunkID)
}

func TestChunkFileMissing(t *testing.T) {
	c := newChunker(t, StrategyFixed, 100, 0)
	_, err := c.ChunkFile("/nonexistent/file.txt")
	assert.True(t, apperr.IsKind(err, apperr.KindData))
}
