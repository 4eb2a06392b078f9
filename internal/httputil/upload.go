package httputil

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
)

const maxMemoryBytes = 32 << 20

func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// ParseMultipart bounds the request body to maxBytes and parses the form.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		}
		return apperr.Invalid("invalid multipart form")
	}
	return nil
}

// SaveFormFile copies the named multipart file to a temporary file and
// returns its path, or "" when the field is absent. The caller owns the file.
func SaveFormFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Invalid("invalid " + field + " upload")
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	tmp, err := os.CreateTemp("", "vibeverse-upload-*"+ext)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "failed to buffer upload", err)
	}

	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", apperr.Wrap(apperr.Internal, "failed to buffer upload", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", apperr.Wrap(apperr.Internal, "failed to buffer upload", err)
	}
	return tmp.Name(), nil
}

// RemoveFiles deletes temporary upload files, skipping empty paths.
func RemoveFiles(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
