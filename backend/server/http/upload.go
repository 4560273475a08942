package http

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const maxUploadSize = 32 << 20

// File types clients may share in chat.
var allowedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".pdf": {}, ".mp4": {}, ".mp3": {}, ".docx": {},
}

func (srv *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "no file part"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "no file part"})
		return
	}
	defer func() {
		_ = file.Close()
	}()

	name := sanitizeFilename(header.Filename)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "no selected file"})
		return
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "file type not allowed"})
		return
	}

	// The extension alone is client-controlled, so sniff the content too.
	mime, err := mimetype.DetectReader(file)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to sniff uploaded file")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !mimeAllowed(mime) {
		writeJSON(w, http.StatusBadRequest, &GenericResponse{Error: "file type not allowed"})
		return
	}
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		srv.logger.Error().Err(err).Msg("failed to rewind uploaded file")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err = os.MkdirAll(srv.uploadDir, 0o755); err != nil {
		srv.logger.Error().Err(err).Msg("failed to create upload dir")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// Prefix with a random id so concurrent uploads of the same filename
	// cannot clobber each other.
	stored := uuid.NewString()[:8] + "_" + name
	dst, err := os.Create(filepath.Join(srv.uploadDir, stored))
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to create uploaded file")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = dst.Close()
	}()
	if _, err = io.Copy(dst, file); err != nil {
		srv.logger.Error().Err(err).Msg("failed to store uploaded file")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	srv.logger.Debug().Str("file", stored).Msg("file uploaded")
	writeJSON(w, http.StatusOK, &GenericResponse{
		Message: "File uploaded",
		Data:    map[string]string{"file_url": "/uploads/" + stored},
	})
}

func (srv *Server) uploaded(w http.ResponseWriter, r *http.Request) {
	name := sanitizeFilename(r.PathValue("file"))
	if name == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, filepath.Join(srv.uploadDir, name))
}

// sanitizeFilename strips any path components and characters outside a
// conservative allowlist.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		}
		return '_'
	}, name)
	if cleaned == "." || cleaned == ".." || strings.Trim(cleaned, "._") == "" {
		return ""
	}
	return cleaned
}

func mimeAllowed(mime *mimetype.MIME) bool {
	for ext := range allowedExtensions {
		if mime.Is(mimeForExt(ext)) {
			return true
		}
	}
	return false
}

func mimeForExt(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return ""
}
