package elvis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

// fileField is the multipart field name the service reads file content from.
const fileField = "Filedata"

// sniffLen is how much of a file is read for content sniffing.
const sniffLen = 512

// FileDescriptor names a local file to upload. Filename is the name sent to
// the service; Path is where the content is read from.
type FileDescriptor struct {
	Filename string
	Path     string
}

// postFile sends metadata and the file as multipart/form-data and decodes
// the JSON response. The body is streamed, so the request is never retried.
// Upload responses carry no auth state and cookies are not extracted.
func (c *Client) postFile(ctx context.Context, ref string, metadata Fields, file FileDescriptor) (Response, error) {
	target, err := c.endpoint(ref)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("elvis: opening upload source: %w", err)
	}

	name := file.Filename
	if name == "" {
		name = filepath.Base(file.Path)
	}

	contentType, err := detectContentType(f, name)
	if err != nil {
		f.Close()
		return nil, err
	}

	c.logger.Info("uploading file",
		slog.String("endpoint", target.Path),
		slog.String("filename", name),
		slog.String("content_type", contentType),
	)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer f.Close()
		pw.CloseWithError(writeMultipart(mw, metadata, name, contentType, f))
	}()

	// Unblocks the writer goroutine if the request fails before reading it all.
	defer pr.Close()

	resp, err := c.send(ctx, outbound{
		method:      http.MethodPost,
		target:      target,
		stream:      pr,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodPost, Endpoint: target.Path, Err: err}
	}

	out, decErr := decodeBody(resp.StatusCode, body)
	if decErr != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, newServiceError(resp, body)
		}

		return nil, decErr
	}

	return out, nil
}

// writeMultipart writes the metadata fields followed by the file part and
// closes the multipart writer.
func writeMultipart(mw *multipart.Writer, metadata Fields, name, contentType string, r io.Reader) error {
	for _, k := range metadata.sortedKeys() {
		if err := mw.WriteField(k, metadata[k]); err != nil {
			return fmt.Errorf("writing field %s: %w", k, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		fileField, quoteEscaper.Replace(name)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("copying file content: %w", err)
	}

	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// detectContentType guesses the MIME type from the extension, falling back
// to sniffing the first bytes. f is rewound afterwards.
func detectContentType(f *os.File, name string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct, nil
	}

	buf := make([]byte, sniffLen)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("elvis: reading upload source: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("elvis: rewinding upload source: %w", err)
	}

	return http.DetectContentType(buf[:n]), nil
}
