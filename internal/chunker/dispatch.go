package chunker

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/models"
)

// ChunkFile dispatches on file extension: CSV rows render as "k: v | ..."
// chunks, JSON flattens nested keys with "_" before packing, PDF extracts
// text, everything else takes the plain text path.
func (c *Chunker) ChunkFile(path string) ([]models.Chunk, error) {
	source := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return c.chunkCSV(path, source)
	case ".json":
		return c.chunkJSON(path, source)
	case ".pdf":
		return c.chunkPDF(path, source)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to read %s", source))
		}
		return c.ChunkText(string(data), source), nil
	}
}

// chunkCSV emits one chunk per data row with columns rendered inline, so a
// search hit maps back to exactly one record.
func (c *Chunker) chunkCSV(path, source string) ([]models.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to open %s", source))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to parse %s", source))
	}
	if len(rows) < 2 {
		return []models.Chunk{}, nil
	}

	header := rows[0]
	chunks := make([]models.Chunk, 0, len(rows)-1)
	for i, row := range rows[1:] {
		pairs := make([]string, 0, len(row))
		for j, value := range row {
			name := fmt.Sprintf("col_%d", j)
			if j < len(header) {
				name = header[j]
			}
			pairs = append(pairs, fmt.Sprintf("%s: %s", name, value))
		}
		text := strings.Join(pairs, " | ")
		chunks = append(chunks, models.Chunk{
			ChunkID:    fmt.Sprintf("%s_%d", source, i),
			Text:       text,
			Metadata:   map[string]string{"source": source, "row": fmt.Sprintf("%d", i)},
			TokenCount: EstimateTokens(text),
			ChunkIndex: i,
		})
	}
	return chunks, nil
}

// chunkJSON flattens the document into "key: value" lines with nested keys
// joined by "_", then packs the rendering through the text path.
func (c *Chunker) chunkJSON(path, source string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to read %s", source))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to parse %s", source))
	}

	flat := make(map[string]string)
	flattenJSON("", doc, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", k, flat[k]))
	}
	return c.ChunkText(strings.Join(lines, ". "), source), nil
}

func flattenJSON(prefix string, value interface{}, out map[string]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			next := key
			if prefix != "" {
				next = prefix + "_" + key
			}
			flattenJSON(next, child, out)
		}
	case []interface{}:
		for i, child := range v {
			flattenJSON(fmt.Sprintf("%s_%d", prefix, i), child, out)
		}
	case nil:
		out[prefix] = "null"
	default:
		out[prefix] = fmt.Sprintf("%v", v)
	}
}

var pdfTextLiteral = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)

// chunkPDF extracts text literals from the PDF content streams and feeds
// them through the text path. Scanned PDFs without a text layer yield no
// chunks rather than an error.
func (c *Chunker) chunkPDF(path, source string) ([]models.Chunk, error) {
	outDir, err := os.MkdirTemp("", "pdf-extract-*")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to create extraction directory")
	}
	defer os.RemoveAll(outDir)

	if err := pdfapi.ExtractContentFile(path, outDir, nil, nil); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, fmt.Sprintf("failed to extract content from %s", source))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read extraction directory")
	}

	var text strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, match := range pdfTextLiteral.FindAllSubmatch(content, -1) {
			literal := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`).Replace(string(match[1]))
			if strings.TrimSpace(literal) == "" {
				continue
			}
			text.WriteString(literal)
			text.WriteString(" ")
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		c.logger.Warn().Str("source", source).Msg("PDF has no extractable text layer")
		return []models.Chunk{}, nil
	}
	return c.ChunkText(text.String(), source), nil
}
