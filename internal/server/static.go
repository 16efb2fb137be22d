package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/hammer/internal/validation"
)

const reloadElement = `<script src="/hammer/reload"></script>`

var dispositionUnsafe = regexp.MustCompile(`[^0-9a-zA-Z.-]`)

var errUnsatisfiable = errors.New("range not satisfiable")

func notFound(w http.ResponseWriter, r *http.Request) {
	body := []byte("not found")
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(body)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		notFound(w, r)
		return
	}

	path, err := validation.ContainedPath(s.root, r.URL.Path)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Rejected request path", "path", r.URL.Path)
		notFound(w, r)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		notFound(w, r)
		return
	}
	if info.IsDir() {
		path = filepath.Join(path, "index.html")
		info, err = os.Stat(path)
		if err != nil {
			notFound(w, r)
			return
		}
	}
	if !info.Mode().IsRegular() {
		notFound(w, r)
		return
	}

	mimeType := contentType(path)
	if strings.HasPrefix(mimeType, "text/html") {
		s.serveHTML(w, r, path)
		return
	}
	s.serveFile(w, r, path, info.Size(), mimeType)
}

// serveHTML serves a document with the reload script injected. The response
// is always complete; Range is ignored because offsets into the injected body
// would not match the file on disk.
func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		notFound(w, r)
		return
	}

	body := []byte(injectReloadScript(string(content)))
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string, size int64, mimeType string) {
	f, err := os.Open(path)
	if err != nil {
		notFound(w, r)
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", mimeType)
	h.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, dispositionName(path)))
	h.Set("Cache-Control", "public")

	start, end, err := parseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, errUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	case err != nil:
		start, end = 0, size-1
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
	default:
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		h.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
	}

	if r.Method == http.MethodHead || size == 0 {
		return
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}
	if _, err := io.CopyN(w, f, end-start+1); err != nil {
		s.logger.Debug(r.Context(), "Static write interrupted", "path", path, "error", err.Error())
	}
}

var errNoRange = errors.New("no range")

// parseRange reads a single "bytes=N-" or "bytes=N-M" range. It returns
// errNoRange for absent or unsupported headers, which are served in full,
// and errUnsatisfiable when N is past the end of the file.
func parseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, errNoRange
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok || first == "" {
		return 0, 0, errNoRange
	}

	start, err = strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errNoRange
	}
	if start >= size {
		return 0, 0, errUnsatisfiable
	}

	end = size - 1
	if last = strings.TrimSpace(last); last != "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n < start {
			return 0, 0, errNoRange
		}
		end = min(n, size-1)
	}

	return start, end, nil
}

// injectReloadScript places the reload script on the line after the last
// line containing an <html or <head tag, indented two spaces past it. A
// document with neither gets the script appended.
func injectReloadScript(content string) string {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.Contains(line, "<html") && !strings.Contains(line, "<head") {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		script := strings.Repeat(" ", indent+2) + reloadElement

		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:i+1]...)
		out = append(out, script)
		out = append(out, lines[i+1:]...)

		return strings.Join(out, "\n")
	}

	return content + "\n" + reloadElement
}

func contentType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}

	return "application/octet-stream"
}

func dispositionName(path string) string {
	return dispositionUnsafe.ReplaceAllString(filepath.Base(path), "-")
}
