package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/rsclarke/hookcatch/internal/models"
)

// Upload error codes stored in FileUpload.Error.
const (
	UploadErrOK        = 0
	UploadErrCantWrite = 7
)

// DefaultMaxMemory is the multipart in-memory threshold.
const DefaultMaxMemory = 32 << 20

// ErrBodyTooLarge is returned when the body was truncated at MaxBodyBytes.
var ErrBodyTooLarge = errors.New("request body too large")

// Options controls how a live request is read.
type Options struct {
	// MaxBodyBytes truncates bodies longer than this. Zero means unlimited.
	MaxBodyBytes int64
	// MaxMemory is passed to ParseMultipartForm.
	MaxMemory int64
	// UploadDir, when set, receives a copy of every uploaded file and the
	// copy's path is recorded as tmp_name. Copies are kept.
	UploadDir string
}

// FromHTTP snapshots r into an Inbound. The returned cleanup func releases
// multipart temp files and must always be called. A non-nil error reports
// a partial read (truncated body, unparsable form); the Inbound is still
// usable.
func FromHTTP(r *http.Request, opts Options) (Inbound, func(), error) {
	var errs []error
	cleanup := func() {}

	body, err := readBody(r.Body, opts.MaxBodyBytes)
	if err != nil {
		errs = append(errs, err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	in := Inbound{
		Method:        r.Method,
		RequestURI:    r.RequestURI,
		Header:        r.Header.Clone(),
		Cookies:       r.Cookies(),
		Body:          body,
		RawQuery:      r.URL.RawQuery,
		Query:         r.URL.Query(),
		Form:          url.Values{},
		Files:         map[string]models.FileUpload{},
		RemoteAddr:    r.RemoteAddr,
		ContentLength: r.Header.Get("Content-Length"),
	}
	if in.RequestURI == "" {
		in.RequestURI = r.URL.RequestURI()
	}
	if in.Header == nil {
		in.Header = http.Header{}
	}
	if in.ContentLength == "" && r.ContentLength > 0 {
		in.ContentLength = strconv.FormatInt(r.ContentLength, 10)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		maxMemory := opts.MaxMemory
		if maxMemory <= 0 {
			maxMemory = DefaultMaxMemory
		}
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			errs = append(errs, fmt.Errorf("parse multipart form: %w", err))
		}
		if r.MultipartForm != nil {
			form := r.MultipartForm
			cleanup = func() { _ = form.RemoveAll() }
			in.Files = collectFiles(form.File, opts.UploadDir, &errs)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			errs = append(errs, fmt.Errorf("parse form: %w", err))
		}
	}
	for k, v := range r.PostForm {
		in.Form[k] = append([]string(nil), v...)
	}

	return in, cleanup, errors.Join(errs...)
}

func readBody(rc io.ReadCloser, limit int64) ([]byte, error) {
	if rc == nil || rc == http.NoBody {
		return nil, nil
	}
	defer rc.Close()

	var reader io.Reader = rc
	if limit > 0 {
		reader = io.LimitReader(rc, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return body, fmt.Errorf("read body: %w", err)
	}
	if limit > 0 && int64(len(body)) > limit {
		return body[:limit], ErrBodyTooLarge
	}
	return body, nil
}

// collectFiles keys the first part of a field by its name and later parts
// as name[1], name[2], ...
func collectFiles(parts map[string][]*multipart.FileHeader, uploadDir string, errs *[]error) map[string]models.FileUpload {
	files := make(map[string]models.FileUpload)
	for field, headers := range parts {
		for i, fh := range headers {
			key := field
			if i > 0 {
				key = fmt.Sprintf("%s[%d]", field, i)
			}
			f := models.FileUpload{
				Name:  fh.Filename,
				Type:  fh.Header.Get("Content-Type"),
				Size:  fh.Size,
				Error: UploadErrOK,
			}
			if uploadDir != "" {
				path, err := spool(fh, uploadDir)
				if err != nil {
					*errs = append(*errs, fmt.Errorf("spool upload %q: %w", fh.Filename, err))
					f.Error = UploadErrCantWrite
				} else {
					f.TmpName = path
				}
			}
			files[key] = f
		}
	}
	return files
}

func spool(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
