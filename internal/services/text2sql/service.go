// Package text2sql turns natural-language questions into SQL over the
// admin database and executes them through a read-only gate.
package text2sql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

const (
	maxRows        = 1000
	executeTimeout = 30 * time.Second
)

// forbiddenKeywords blocks any statement that could mutate state, even
// behind a SELECT prefix (e.g. CTE tricks).
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"CREATE", "TRUNCATE", "EXEC", "GRANT", "REVOKE",
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// TableSchema describes one table for the schema endpoint and the LLM
// prompt.
type TableSchema struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// ExecuteResult is a capped query result.
type ExecuteResult struct {
	Columns  []string                 `json:"columns"`
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
	HasMore  bool                     `json:"has_more"`
}

type Service struct {
	dbPath  string
	llm     interfaces.LLMService
	history interfaces.Text2SQLStorage
	logger  arbor.ILogger
}

// NewService wires the text2sql surface over the admin database file.
// llm may be nil; generation then uses the heuristic fallback only.
func NewService(dbPath string, llm interfaces.LLMService, history interfaces.Text2SQLStorage, logger arbor.ILogger) *Service {
	return &Service{dbPath: dbPath, llm: llm, history: history, logger: logger}
}

// Schema lists the tables and columns of the admin database.
func (s *Service) Schema(ctx context.Context) ([]TableSchema, error) {
	db, err := s.openReadOnly()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to list tables")
	}
	defer rows.Close()

	var tables []TableSchema
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan table name")
		}
		tables = append(tables, TableSchema{Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to iterate tables")
	}

	for i := range tables {
		columns, err := s.tableColumns(ctx, db, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = columns
	}
	return tables, nil
}

func (s *Service) tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read table info")
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan column info")
		}
		columns = append(columns, name+" "+ctype)
	}
	return columns, rows.Err()
}

// Generate produces SQL for a natural-language question, via the LLM when
// one is available and a keyword heuristic otherwise.
func (s *Service) Generate(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apperr.Validation("question is required")
	}

	if s.llm != nil && s.llm.IsAvailable(ctx) {
		generated, err := s.generateWithLLM(ctx, question)
		if err == nil && generated != "" {
			return generated, nil
		}
		s.logger.Warn().Err(err).Msg("LLM SQL generation failed, using heuristic fallback")
	}
	return s.heuristicSQL(question), nil
}

func (s *Service) generateWithLLM(ctx context.Context, question string) (string, error) {
	tables, err := s.Schema(ctx)
	if err != nil {
		return "", err
	}
	var schema strings.Builder
	for _, table := range tables {
		fmt.Fprintf(&schema, "%s(%s)\n", table.Name, strings.Join(table.Columns, ", "))
	}

	system := "You translate questions into a single SQLite SELECT statement. " +
		"Respond with SQL only, no prose, no markdown fences. Schema:\n" + schema.String()
	raw, err := s.llm.Generate(ctx, system, question)
	if err != nil {
		return "", err
	}
	return cleanGeneratedSQL(raw), nil
}

// cleanGeneratedSQL strips markdown fences and trailing prose that LLMs
// like to add around the statement.
func cleanGeneratedSQL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```sql")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.Index(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

// heuristicSQL maps question keywords onto the known admin tables.
func (s *Service) heuristicSQL(question string) string {
	lower := strings.ToLower(question)
	table := "jobs"
	switch {
	case strings.Contains(lower, "dataset"):
		table = "datasets"
	case strings.Contains(lower, "alert"):
		table = "alerts"
	case strings.Contains(lower, "audit"):
		table = "audit_log"
	case strings.Contains(lower, "integration"):
		table = "integrations"
	}
	if strings.Contains(lower, "count") || strings.Contains(lower, "how many") {
		return fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table)
	}
	return fmt.Sprintf("SELECT * FROM %s ORDER BY id DESC LIMIT 50", table)
}

// Execute runs a statement through the read-only gate and records it in
// the history table.
func (s *Service) Execute(ctx context.Context, statement string) (*ExecuteResult, error) {
	if err := ValidateReadOnly(statement); err != nil {
		s.recordHistory(ctx, statement, statement, false, 0)
		return nil, err
	}

	db, err := s.openReadOnly()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	execCtx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	rows, err := db.QueryContext(execCtx, statement)
	if err != nil {
		s.recordHistory(ctx, statement, statement, false, 0)
		return nil, apperr.Wrap(err, apperr.KindData, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to read result columns")
	}

	result := &ExecuteResult{Columns: columns}
	for rows.Next() {
		if len(result.Rows) >= maxRows {
			result.HasMore = true
			break
		}
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, apperr.Wrap(err, apperr.KindData, "failed to scan result row")
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to iterate result rows")
	}
	result.RowCount = len(result.Rows)

	s.recordHistory(ctx, statement, statement, true, result.RowCount)
	return result, nil
}

// ValidateReadOnly enforces the read-only gate: the normalized statement
// must start with SELECT and carry none of the forbidden keywords.
func ValidateReadOnly(statement string) error {
	normalized := strings.ToUpper(whitespacePattern.ReplaceAllString(strings.TrimSpace(statement), " "))
	if normalized == "" {
		return apperr.Validation("statement is required")
	}
	for _, keyword := range forbiddenKeywords {
		if containsKeyword(normalized, keyword) {
			return apperr.Validation("statement contains forbidden keyword %s", keyword)
		}
	}
	if !strings.HasPrefix(normalized, "SELECT") {
		return apperr.Validation("only SELECT statements are allowed")
	}
	return nil
}

// containsKeyword matches whole words only, so a column named
// "created_at" does not trip the CREATE filter.
func containsKeyword(normalized, keyword string) bool {
	for start := 0; ; {
		idx := strings.Index(normalized[start:], keyword)
		if idx < 0 {
			return false
		}
		idx += start
		before := idx == 0 || !isWordChar(normalized[idx-1])
		afterIdx := idx + len(keyword)
		after := afterIdx >= len(normalized) || !isWordChar(normalized[afterIdx])
		if before && after {
			return true
		}
		start = idx + len(keyword)
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// openReadOnly opens the admin database in URI read-only mode with
// query_only set as a second fence.
func (s *Service) openReadOnly() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+s.dbPath+"?mode=ro")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindData, "failed to open read-only connection")
	}
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, apperr.Wrap(err, apperr.KindData, "failed to set query_only")
	}
	return db, nil
}

func (s *Service) recordHistory(ctx context.Context, question, statement string, executed bool, rowCount int) {
	if s.history == nil {
		return
	}
	entry := &models.Text2SQLEntry{
		NaturalLanguage: question,
		GeneratedSQL:    statement,
		Executed:        executed,
		RowCount:        rowCount,
	}
	if _, err := s.history.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record text2sql history")
	}
}
