// Package payload decodes request bodies into the typed slots of a PayloadBundle.
package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"github.com/rsclarke/hookcatch/internal/models"
)

// Content types recognised by Decode. Matching is by substring so parameters
// such as charset or boundary do not matter.
const (
	TypeJSON       = "application/json"
	TypeXML        = "application/xml"
	TypeTextXML    = "text/xml"
	TypeURLEncoded = "application/x-www-form-urlencoded"
	TypeMultipart  = "multipart/form-data"
	TypeText       = "text/plain"
	TypeBinary     = "application/octet-stream"
)

// Input is everything the decoder looks at. Query, Form and Files are what
// the transport already parsed; Body is the verbatim request body. When
// RawQuery is set it is parsed in order and Query is ignored.
type Input struct {
	ContentType string
	Body        []byte
	RawQuery    string
	Query       url.Values
	Form        url.Values
	Files       map[string]models.FileUpload
}

// Decode builds a PayloadBundle from in. It never fails: a slot whose
// decoding does not succeed is left at its empty default.
func Decode(in Input) models.PayloadBundle {
	ct := in.ContentType
	hasBody := len(in.Body) > 0

	p := models.PayloadBundle{
		QueryParams:   ParseValues(in.Query),
		FormData:      ParseValues(in.Form),
		Files:         copyFiles(in.Files),
		RawBody:       string(in.Body),
		MultipartData: map[string]any{},
		URLEncoded:    models.Values{},
	}

	if in.RawQuery != "" {
		p.QueryParams = ParseQuery(in.RawQuery)
	}

	if strings.Contains(ct, TypeJSON) && hasBody {
		p.JSONData = DecodeJSON(in.Body)
	}

	if (strings.Contains(ct, TypeXML) || strings.Contains(ct, TypeTextXML)) && hasBody {
		p.XMLData = DecodeXML(in.Body)
	}

	if strings.Contains(ct, TypeURLEncoded) && hasBody {
		p.URLEncoded = ParseQuery(string(in.Body))
		if len(in.Form) > 0 {
			p.FormData = ParseQuery(string(in.Body))
		}
	}

	if strings.Contains(ct, TypeMultipart) {
		for k, v := range p.FormData {
			p.MultipartData[k] = v
		}
		for k, f := range p.Files {
			p.MultipartData[k] = f
		}
	}

	if strings.Contains(ct, TypeText) && hasBody {
		text := string(in.Body)
		p.TextData = &text
	}

	if strings.Contains(ct, TypeBinary) && hasBody {
		p.BinaryData = &models.BinaryData{
			Size:        len(in.Body),
			ContentType: ct,
			Base64:      base64.StdEncoding.EncodeToString(in.Body),
		}
	}

	return p
}

// DecodeJSON parses body into a generic value with numbers kept as
// json.Number. It returns nil for invalid JSON or trailing data.
func DecodeJSON(body []byte) any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil
	}
	return v
}

func copyFiles(files map[string]models.FileUpload) map[string]models.FileUpload {
	out := make(map[string]models.FileUpload, len(files))
	for k, f := range files {
		out[k] = f
	}
	return out
}
