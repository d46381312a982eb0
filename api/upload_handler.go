package api

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"chat-relay/repositories"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

type UploadHandler struct {
	log      *slog.Logger
	users    repositories.IUserRepository
	dir      string
	maxBytes int64
}

func NewUploadHandler(log *slog.Logger, users repositories.IUserRepository,
	dir string, maxBytes int64) *UploadHandler {
	return &UploadHandler{log: log, users: users, dir: dir, maxBytes: maxBytes}
}

// Upload stores one multipart file under a random name and returns the
// URL it is served from. The content type comes from sniffing the bytes,
// never from the client-supplied header. A part named "avatar" is also
// recorded as the uploader's avatar.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	caller, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	file, header, field, err := firstFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	kind := mimetype.Detect(data)
	if !allowedUpload(kind) {
		writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("content type %s is not allowed", kind.String()))
		return
	}

	name := uuid.NewString() + kind.Extension()
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		h.log.Error("upload dir unavailable", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if err := os.WriteFile(filepath.Join(h.dir, name), data, 0o644); err != nil {
		h.log.Error("upload write failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	url := "/uploads/" + name
	if field == "avatar" {
		if err := h.users.SetAvatar(caller.ID, url); err != nil {
			h.log.Warn("avatar update failed",
				slog.String("user_id", caller.ID),
				slog.String("error", err.Error()))
		}
	}

	h.log.Info("file uploaded",
		slog.String("user_id", caller.ID),
		slog.String("name", header.Filename),
		slog.String("content_type", kind.String()),
		slog.Int("size", len(data)))
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// firstFile returns the "file" part, or the "avatar" part when that is
// what the client sent.
func firstFile(r *http.Request) (multipart.File, *multipart.FileHeader, string, error) {
	for _, field := range []string{"file", "avatar"} {
		f, header, err := r.FormFile(field)
		if err == nil {
			return f, header, field, nil
		}
	}
	return nil, nil, "", fmt.Errorf("no file part")
}

func allowedUpload(kind *mimetype.MIME) bool {
	mime := kind.String()
	return strings.HasPrefix(mime, "image/") ||
		strings.HasPrefix(mime, "video/") ||
		mime == "application/pdf"
}
