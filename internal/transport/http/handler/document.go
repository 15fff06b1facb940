package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/transport/http/response"
)

type DocumentHandler struct {
	ingest *app.IngestService
	cfg    config.UploadConfig
}

type UploadResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
	TaskID  string   `json:"taskId"`
}

func NewDocumentHandler(ingest *app.IngestService, cfg config.UploadConfig) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, cfg: cfg}
}

// Upload accepts a multipart form with one or more PDFs in the "files" field,
// stores them in a temporary directory and starts an ingestion task.
func (h *DocumentHandler) Upload(c *gin.Context) {
	maxFileBytes := h.cfg.MaxFileBytes()
	if h.cfg.MaxFiles > 0 && maxFileBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.cfg.MaxFiles)*maxFileBytes+(1<<20))
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "upload too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files provided")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no files provided")
		return
	}
	if h.cfg.MaxFiles > 0 && len(files) > h.cfg.MaxFiles {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, fmt.Sprintf("too many files (max %d)", h.cfg.MaxFiles))
		return
	}
	for _, file := range files {
		if !strings.EqualFold(filepath.Ext(file.Filename), ".pdf") {
			response.Error(c, http.StatusBadRequest, response.CodeInvalidFile, "only PDF files are allowed: "+file.Filename)
			return
		}
		if maxFileBytes > 0 && file.Size > maxFileBytes {
			response.Error(c, http.StatusBadRequest, response.CodeInvalidFile,
				fmt.Sprintf("file too large (max %dMB): %s", h.cfg.MaxFileSizeMB, file.Filename))
			return
		}
	}

	paths, names, err := h.save(c, files)
	if err != nil {
		log.Error().Err(err).Msg("save uploaded files failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to store uploaded files")
		return
	}

	task, err := h.ingest.Submit(paths)
	if err != nil {
		_ = os.RemoveAll(filepath.Dir(paths[0]))
		switch {
		case errors.Is(err, app.ErrIngestionInProgress):
			response.Error(c, http.StatusConflict, response.CodeBusy, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "start processing failed")
		}
		return
	}

	response.OK(c, UploadResponse{
		Success: true,
		Message: fmt.Sprintf("Processing %d file(s) in the background", len(names)),
		Files:   names,
		TaskID:  task.ID,
	})
}

// save writes every file into a fresh directory under the upload dir.
func (h *DocumentHandler) save(c *gin.Context, files []*multipart.FileHeader) ([]string, []string, error) {
	if err := os.MkdirAll(h.cfg.Dir, 0o755); err != nil {
		return nil, nil, err
	}
	dir, err := os.MkdirTemp(h.cfg.Dir, "upload-")
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, 0, len(files))
	names := make([]string, 0, len(files))
	seen := make(map[string]int)
	for _, file := range files {
		name := filepath.Base(filepath.Clean("/" + file.Filename))
		seen[name]++
		stored := name
		if n := seen[name]; n > 1 {
			stored = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, filepath.Ext(name)), n, filepath.Ext(name))
		}
		dst := filepath.Join(dir, stored)
		if err := c.SaveUploadedFile(file, dst); err != nil {
			_ = os.RemoveAll(dir)
			return nil, nil, err
		}
		paths = append(paths, dst)
		names = append(names, name)
	}
	return paths, names, nil
}

func (h *DocumentHandler) Task(c *gin.Context) {
	task, err := h.ingest.Task(c.Param("id"))
	if err != nil {
		if errors.Is(err, app.ErrTaskNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeTaskNotFound, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get task failed")
		return
	}
	response.OK(c, task)
}
