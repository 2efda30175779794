package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// UploadField is the multipart field name carrying each file.
const UploadField = "files"

// UploadFile is one part of a batch upload.
type UploadFile struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// FileResult is the backend's verdict for one uploaded file, exactly as sent.
type FileResult struct {
	Filename         string `json:"filename"`
	Status           string `json:"status"`
	RecordsExtracted *int   `json:"records_extracted,omitempty"`
	Reason           string `json:"reason,omitempty"`
	FileType         string `json:"file_type,omitempty"`
}

// UploadResponse is the body of POST /upload.
type UploadResponse struct {
	Results []FileResult `json:"results"`
}

// ProgressFunc receives the number of request bytes sent so far and the
// total size of the request body.
type ProgressFunc func(sent, total int64)

const uploadResponseSchema = `{
  "type": "object",
  "required": ["results"],
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["filename", "status"],
        "properties": {
          "filename": {"type": "string"},
          "status": {"type": "string", "minLength": 1},
          "records_extracted": {"type": ["integer", "null"], "minimum": 0},
          "reason": {"type": ["string", "null"]},
          "file_type": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func uploadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("upload-response.json", strings.NewReader(uploadResponseSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("upload-response.json")
	})
	return compiledSchema, schemaErr
}

// Upload sends files as one multipart request and returns the per-file
// results. progress may be nil.
//
// An error from Upload always means the batch as a whole has no usable
// answer (see IsTransport); per-file rejections and failures are reported
// in the results, not as an error.
func (c *Client) Upload(ctx context.Context, files []UploadFile, progress ProgressFunc) (*UploadResponse, error) {
	const op = "Upload"

	body, contentType, err := encodeMultipart(files)
	if err != nil {
		return nil, NewAPIError(op, 0, err, "encoding multipart body")
	}

	total := int64(body.Len())
	var reader io.Reader = body
	if progress != nil {
		progress(0, total)
		reader = &progressReader{r: body, total: total, report: progress}
	}

	c.log.Info().
		Int("files", len(files)).
		Int64("bytes", total).
		Msg("Uploading batch")

	resp, err := c.do(ctx, op, http.MethodPost, c.endpoint("/upload", nil), reader, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewAPIError(op, resp.StatusCode, ErrNoResponse, "reading response: "+err.Error())
	}

	out, err := decodeUploadResponse(raw)
	if err != nil {
		return nil, NewAPIError(op, resp.StatusCode, ErrInvalidResponse, err.Error())
	}

	c.log.Info().Int("results", len(out.Results)).Msg("Batch upload answered")
	return out, nil
}

func decodeUploadResponse(raw []byte) (*UploadResponse, error) {
	schema, err := uploadSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}

	var out UploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func encodeMultipart(files []UploadFile) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, UploadField, escapeQuotes(f.Name)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader reports bytes as the transport pulls them from the body.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
