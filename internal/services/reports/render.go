package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"

	"github.com/ternarybob/trutina/internal/apperr"
)

// renderMarkdown turns a compiled report into a markdown document with
// one section per artifact.
func renderMarkdown(compiled *Compiled) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", compiled.Label)
	fmt.Fprintf(&b, "Generated %s\n\n", time.Now().UTC().Format("2006-01-02 15:04 UTC"))

	for _, section := range sectionOrder {
		raw, ok := compiled.Sections[section]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", sectionTitles[section])
		writeMarkdownValue(&b, raw, 0)
		b.WriteString("\n")
	}
	return b.String()
}

// writeMarkdownValue renders a JSON value as nested bullet lists. Scalars
// inline, objects and arrays recurse one indent level deeper.
func writeMarkdownValue(b *strings.Builder, raw json.RawMessage, depth int) {
	indent := strings.Repeat("  ", depth)

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err == nil {
		keys := make([]string, 0, len(object))
		for key := range object {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if isScalar(object[key]) {
				fmt.Fprintf(b, "%s- **%s**: %s\n", indent, key, scalarText(object[key]))
			} else {
				fmt.Fprintf(b, "%s- **%s**:\n", indent, key)
				writeMarkdownValue(b, object[key], depth+1)
			}
		}
		return
	}

	var array []json.RawMessage
	if err := json.Unmarshal(raw, &array); err == nil {
		// long arrays are elided after a fixed window
		limit := len(array)
		if limit > 25 {
			limit = 25
		}
		for _, item := range array[:limit] {
			if isScalar(item) {
				fmt.Fprintf(b, "%s- %s\n", indent, scalarText(item))
			} else {
				fmt.Fprintf(b, "%s-\n", indent)
				writeMarkdownValue(b, item, depth+1)
			}
		}
		if limit < len(array) {
			fmt.Fprintf(b, "%s- (%d more entries)\n", indent, len(array)-limit)
		}
		return
	}

	fmt.Fprintf(b, "%s%s\n", indent, scalarText(raw))
}

func isScalar(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[')
}

func scalarText(raw json.RawMessage) string {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	switch v := value.(type) {
	case nil:
		return "null"
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// renderHTML converts the markdown rendition to an HTML preview.
func renderHTML(compiled *Compiled) (string, error) {
	var out bytes.Buffer
	if err := goldmark.Convert([]byte(renderMarkdown(compiled)), &out); err != nil {
		return "", apperr.Wrap(err, apperr.KindModel, "failed to render HTML preview")
	}
	return out.String(), nil
}

// renderPDF lays the markdown rendition out as a simple paginated PDF.
func renderPDF(compiled *Compiled) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(0, 9, compiled.Label, "", "L", false)
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, "Generated "+time.Now().UTC().Format("2006-01-02 15:04 UTC"), "", "L", false)
	pdf.Ln(4)

	for _, section := range sectionOrder {
		raw, ok := compiled.Sections[section]
		if !ok {
			continue
		}
		pdf.SetFont("Helvetica", "B", 13)
		pdf.MultiCell(0, 7, sectionTitles[section], "", "L", false)
		pdf.Ln(1)

		var body strings.Builder
		writeMarkdownValue(&body, raw, 0)
		pdf.SetFont("Helvetica", "", 9)
		for _, line := range strings.Split(body.String(), "\n") {
			line = strings.ReplaceAll(line, "**", "")
			pdf.MultiCell(0, 4.5, line, "", "L", false)
		}
		pdf.Ln(3)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, apperr.Wrap(err, apperr.KindModel, "failed to render PDF")
	}
	return out.Bytes(), nil
}
