package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
)

// LogsHandler reads log files strictly inside the logs directory.
type LogsHandler struct {
	cfg    *common.Config
	logger arbor.ILogger
}

func NewLogsHandler(cfg *common.Config, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{cfg: cfg, logger: logger}
}

// Handle serves GET /api/admin/logs?file=&level=&search=&limit=. The file
// parameter is resolved against the logs directory and refused when the
// resolved path escapes it.
func (h *LogsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	fileName := q.Get("file")
	if fileName == "" {
		fileName = "trutina.log"
	}

	path, err := h.resolve(fileName)
	if err != nil {
		WriteError(w, err)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			WriteError(w, apperr.NotFound("log file %q not found", fileName))
			return
		}
		WriteError(w, apperr.Wrap(err, apperr.KindData, "failed to read log file"))
		return
	}

	level := strings.ToLower(q.Get("level"))
	search := q.Get("search")
	limit := QueryInt(r, "limit", 100)

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		if level != "" && !strings.Contains(line, `"level":"`+level+`"`) {
			continue
		}
		if search != "" && !strings.Contains(line, search) {
			continue
		}
		lines = append(lines, line)
	}
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"file":  fileName,
		"lines": lines,
		"count": len(lines),
	})
}

// resolve joins the requested name onto the logs directory and verifies
// the absolute result is still inside it.
func (h *LogsHandler) resolve(fileName string) (string, error) {
	logsDir, err := filepath.Abs(h.cfg.LogsDir())
	if err != nil {
		return "", apperr.Wrap(err, apperr.KindData, "failed to resolve logs directory")
	}
	candidate, err := filepath.Abs(filepath.Join(logsDir, fileName))
	if err != nil {
		return "", apperr.Validation("invalid log file name %q", fileName)
	}
	if !strings.HasPrefix(candidate, logsDir+string(filepath.Separator)) {
		return "", apperr.Validation("log file %q is outside the logs directory", fileName)
	}
	return candidate, nil
}
