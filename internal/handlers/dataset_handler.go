package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/trutina/internal/apperr"
	"github.com/ternarybob/trutina/internal/common"
	"github.com/ternarybob/trutina/internal/dataframe"
	"github.com/ternarybob/trutina/internal/interfaces"
	"github.com/ternarybob/trutina/internal/models"
)

// DatasetHandler owns upload and the dataset lifecycle endpoints.
type DatasetHandler struct {
	datasets interfaces.DatasetStorage
	audit    interfaces.AuditStorage
	cfg      *common.Config
	logger   arbor.ILogger
}

func NewDatasetHandler(datasets interfaces.DatasetStorage, audit interfaces.AuditStorage, cfg *common.Config, logger arbor.ILogger) *DatasetHandler {
	return &DatasetHandler{datasets: datasets, audit: audit, cfg: cfg, logger: logger}
}

// Upload accepts one multipart file, enforces the size cap and extension
// allowlist, stores it under uploads/ and registers the dataset row. CSV
// files are profiled on the way in; other formats register unprofiled.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteError(w, apperr.Validation("invalid multipart upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, apperr.Validation("missing form file %q", "file"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !h.extensionAllowed(ext) {
		WriteError(w, apperr.Validation("file extension %q is not allowed", ext))
		return
	}

	base := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	safeName := common.SanitizeIdentifier(base)
	if safeName == "" {
		safeName = "dataset"
	}
	fileName := fmt.Sprintf("%d_%s%s", time.Now().UTC().UnixNano(), safeName, ext)
	destPath := filepath.Join(h.cfg.UploadsDir(), fileName)

	dest, err := os.Create(destPath)
	if err != nil {
		WriteError(w, apperr.Wrap(err, apperr.KindData, "failed to store upload"))
		return
	}
	size, err := io.Copy(dest, file)
	dest.Close()
	if err != nil {
		os.Remove(destPath)
		WriteError(w, apperr.Wrap(err, apperr.KindData, "failed to store upload"))
		return
	}

	dataset := &models.Dataset{
		Name:             safeName,
		OriginalFilename: header.Filename,
		FilePath:         destPath,
		FileSize:         size,
	}
	if ext == ".csv" {
		frame, err := dataframe.LoadCSV(destPath, h.cfg.Storage.SampleLimit)
		if err != nil {
			os.Remove(destPath)
			WriteError(w, apperr.Wrap(err, apperr.KindData, "uploaded CSV could not be parsed"))
			return
		}
		dataset.Rows = frame.NumRows()
		dataset.Cols = len(frame.Columns)
		dataset.Columns = profileFrame(frame)
	}

	id, err := h.datasets.Create(r.Context(), dataset)
	if err != nil {
		os.Remove(destPath)
		WriteError(w, err)
		return
	}
	dataset.ID = id

	h.appendAudit(r, "dataset_upload", fmt.Sprintf("uploaded %s (%d bytes)", header.Filename, size), models.AuditCreate)
	h.logger.Info().Int64("dataset_id", id).Str("file", header.Filename).Int64("bytes", size).Msg("Dataset uploaded")
	WriteJSON(w, http.StatusOK, dataset)
}

// List returns every registered dataset, newest first.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	datasets, err := h.datasets.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": datasets,
		"count":    len(datasets),
	})
}

// Item handles GET and DELETE on /api/admin/datasets/{id}. Deleting the
// row removes the backing file as well.
func (h *DatasetHandler) Item(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "/api/admin/datasets")
	if err != nil {
		WriteError(w, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		dataset, err := h.datasets.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, dataset)
	case http.MethodDelete:
		dataset, err := h.datasets.Get(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		if err := h.datasets.Delete(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		if err := os.Remove(dataset.FilePath); err != nil && !os.IsNotExist(err) {
			h.logger.Warn().Str("path", dataset.FilePath).Err(err).Msg("Failed to remove dataset file")
		}
		h.appendAudit(r, "dataset_delete", fmt.Sprintf("deleted dataset %d (%s)", id, dataset.Name), models.AuditDelete)
		WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
	default:
		WriteDetail(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *DatasetHandler) extensionAllowed(ext string) bool {
	for _, allowed := range h.cfg.Upload.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func (h *DatasetHandler) appendAudit(r *http.Request, action, detail string, entryType models.AuditEntryType) {
	entry := &models.AuditEntry{Action: action, Detail: detail, User: "admin", EntryType: entryType}
	if err := h.audit.Append(r.Context(), entry); err != nil {
		h.logger.Warn().Str("action", action).Err(err).Msg("Failed to append audit entry")
	}
}

func profileFrame(frame *dataframe.Frame) []models.ColumnProfile {
	profiles := make([]models.ColumnProfile, 0, len(frame.Columns))
	for _, name := range frame.Columns {
		values := frame.Column(name)
		nonNull := 0
		unique := make(map[string]struct{})
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				nonNull++
				unique[v] = struct{}{}
			}
		}
		dtype := "categorical"
		if frame.IsNumeric(name) {
			dtype = "numeric"
		}
		profiles = append(profiles, models.ColumnProfile{
			Name:      name,
			Dtype:     dtype,
			NonNull:   nonNull,
			NullCount: len(values) - nonNull,
			Unique:    len(unique),
		})
	}
	return profiles
}
