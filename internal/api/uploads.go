package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/studylog/internal/domain"
	"github.com/go-chi/chi/v5"
)

const (
	defaultMaxUploadBytes = 32 << 20
	multipartMemory       = 8 << 20
	speechFileField       = "speechFile"
)

type uploadResponse struct {
	Status  string `json:"status"`
	AssetID int64  `json:"asset_id"`
	Path    string `json:"path"`
}

// UploadSpeech stores a recorded answer to a speech prompt and records it
// as an asset of the session. Files land in
// <uploads>/<subject>/speech/<YYYY-MM-DD>/<prompt>_<HHMMSS>_<filename>.
func (h *Handler) UploadSpeech(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	subjectID := r.FormValue("subject_id")
	sessionID := r.FormValue("session_id")
	promptID := r.FormValue("prompt_id")
	for _, f := range []struct{ name, value string }{
		{"subject_id", subjectID},
		{"session_id", sessionID},
		{"prompt_id", promptID},
	} {
		if f.value == "" {
			Error(w, http.StatusBadRequest, f.name+" is required")
			return
		}
	}

	file, header, err := r.FormFile(speechFileField)
	if err != nil {
		Error(w, http.StatusBadRequest, speechFileField+" is required")
		return
	}
	defer func() { _ = file.Close() }()

	ctx := r.Context()
	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to load session for upload", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	if session.SubjectID != subjectID {
		Error(w, http.StatusBadRequest, "subject_id does not match session")
		return
	}

	now := h.now().UTC()
	dir := filepath.Join(h.uploadDir, safeName(subjectID), domain.ModalitySpeech, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.logger.Error("Failed to create upload directory", "error", err, "dir", dir)
		Error(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	name := fmt.Sprintf("%s_%s_%s", safeName(promptID), now.Format("150405"), safeName(filepath.Base(header.Filename)))
	path := filepath.Join(dir, name)

	size, err := writeUpload(path, file)
	if errors.Is(err, os.ErrExist) {
		Error(w, http.StatusConflict, "upload already exists")
		return
	}
	if err != nil {
		h.logger.Error("Failed to write upload", "error", err, "path", path)
		Error(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	meta, _ := json.Marshal(map[string]any{
		"filename":     header.Filename,
		"content_type": header.Header.Get("Content-Type"),
		"size":         size,
	})
	tz := r.FormValue("tz")
	if tz == "" {
		tz = "UTC"
	}
	asset := &domain.Asset{
		SubjectID: subjectID,
		SessionID: sessionID,
		Modality:  domain.ModalitySpeech,
		Subtype:   promptID,
		TSUTC:     domain.FormatTimestamp(now),
		TZ:        tz,
		Path:      path,
		MetaJSON:  meta,
		ServerTS:  now,
	}
	if err := h.repo.InsertAsset(ctx, asset); err != nil {
		_ = os.Remove(path)
		h.logger.Error("Failed to record asset", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to record upload")
		return
	}

	h.logger.Info("Speech uploaded",
		"session_id", sessionID,
		"subject_id", subjectID,
		"prompt_id", promptID,
		"bytes", size)
	JSON(w, http.StatusCreated, uploadResponse{Status: "success", AssetID: asset.AssetID, Path: path})
}

// ListSessionAssets returns the uploads recorded for a session.
func (h *Handler) ListSessionAssets(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	ctx := r.Context()

	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	assets, err := h.repo.ListAssets(ctx, sessionID)
	if err != nil {
		h.logger.Error("Failed to list assets", "error", err, "session_id", sessionID)
		Error(w, http.StatusInternalServerError, "failed to list assets")
		return
	}
	if assets == nil {
		assets = []*domain.Asset{}
	}
	JSON(w, http.StatusOK, assets)
}

// writeUpload copies src into a new file at path. It never overwrites.
func writeUpload(path string, src io.Reader) (int64, error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write upload: %w", err)
	}
	return n, nil
}

// safeName reduces s to a single path component of [A-Za-z0-9._-].
func safeName(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return "_"
	}
	return cleaned
}
