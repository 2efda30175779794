package upload

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// acceptedTypes maps each accepted MIME type to its file extensions.
var acceptedTypes = map[string][]string{
	"application/pdf": {".pdf"},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {".xlsx"},
	"application/vnd.ms-excel": {".xls"},
	"text/csv":                 {".csv"},
	"image/jpeg":               {".jpg", ".jpeg"},
	"image/png":                {".png"},
	"application/zip":          {".zip"},
}

var extensionTypes = func() map[string]string {
	m := make(map[string]string)
	for mt, exts := range acceptedTypes {
		for _, ext := range exts {
			m[ext] = mt
		}
	}
	return m
}()

// sniffLen is how many bytes http.DetectContentType looks at.
const sniffLen = 512

// File is a local file offered to the pipeline.
type File struct {
	Path        string
	Name        string
	Size        int64
	ContentType string
}

// Accepts reports whether a file with this name or MIME type may be queued.
// Either one matching is enough.
func Accepts(name, contentType string) bool {
	if _, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return true
	}
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := acceptedTypes[mt]
	return ok
}

// ContentTypeFor returns the accepted MIME type for a file name, or "".
func ContentTypeFor(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

// AcceptedExtensions lists the accepted extensions, sorted.
func AcceptedExtensions() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FileFromPath describes a local file. Path is made absolute so the queued
// task stays readable from any working directory. Only files with no
// extension at all get their MIME type by content sniffing; an unknown
// extension leaves ContentType empty.
func FileFromPath(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	path = abs

	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return File{}, fmt.Errorf("not a regular file: %s", path)
	}

	f := File{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: ContentTypeFor(path),
	}
	if filepath.Ext(path) == "" {
		f.ContentType = sniffContentType(path)
	}
	return f, nil
}

func sniffContentType(path string) string {
	fh, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer fh.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(fh, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return ""
	}
	if n == 0 {
		return ""
	}
	return http.DetectContentType(buf[:n])
}
