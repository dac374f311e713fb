package logstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/rsclarke/hookcatch/internal/models"
)

// entry is one element of a day file. raw is the element exactly as read;
// it is written back unchanged so fields that only decode loosely survive a
// rewrite. Entries added in this process have no raw form.
type entry struct {
	rec models.CaptureRecord
	raw json.RawMessage
}

func (e entry) encode() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	return json.Marshal(e.rec)
}

func recordsOf(entries []entry) []models.CaptureRecord {
	out := make([]models.CaptureRecord, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// decodeRecord decodes one day file element. Records written by other
// implementations may carry an empty list where a map is expected, or
// numbers as strings; those are coerced field by field instead of failing.
// An element that is not an object decodes to an empty record.
func decodeRecord(raw json.RawMessage) models.CaptureRecord {
	var rec models.CaptureRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err == nil {
		return withDefaults(rec)
	}

	var obj map[string]any
	dec = json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return withDefaults(models.CaptureRecord{})
	}

	rec = models.CaptureRecord{
		Method:        asString(obj["method"]),
		Headers:       asStringMap(obj["headers"]),
		Cookies:       asStringMap(obj["cookies"]),
		CreatedAt:     asInt64(obj["created_at"]),
		Path:          asString(obj["path"]),
		ContentType:   asString(obj["content_type"]),
		ContentLength: asInt64(obj["content_length"]),
		UserAgent:     asString(obj["user_agent"]),
		RemoteIP:      asString(obj["remote_ip"]),
	}
	if p, ok := obj["payload"].(map[string]any); ok {
		rec.Payload = decodePayload(p)
	}
	return withDefaults(rec)
}

func decodePayload(p map[string]any) models.PayloadBundle {
	out := models.PayloadBundle{
		QueryParams:   asValues(p["query_params"]),
		FormData:      asValues(p["form_data"]),
		RawBody:       asString(p["raw_body"]),
		JSONData:      p["json_data"],
		XMLData:       p["xml_data"],
		MultipartData: asValues(p["multipart_data"]),
		URLEncoded:    asValues(p["url_encoded"]),
	}

	out.Files = map[string]models.FileUpload{}
	for name, f := range asValues(p["files"]) {
		m, _ := f.(models.Values)
		out.Files[name] = models.FileUpload{
			Name:    asString(m["name"]),
			Type:    asString(m["type"]),
			Size:    asInt64(m["size"]),
			TmpName: asString(m["tmp_name"]),
			Error:   int(asInt64(m["error"])),
		}
	}

	if b, ok := p["binary_data"].(map[string]any); ok {
		out.BinaryData = &models.BinaryData{
			Size:        int(asInt64(b["size"])),
			ContentType: asString(b["content_type"]),
			Base64:      asString(b["base64"]),
		}
	}
	if s, ok := p["text_data"].(string); ok {
		out.TextData = &s
	}
	return out
}

// withDefaults fills the always-present collections so readers never see
// null where an empty object is stored.
func withDefaults(rec models.CaptureRecord) models.CaptureRecord {
	if rec.Headers == nil {
		rec.Headers = map[string]string{}
	}
	if rec.Cookies == nil {
		rec.Cookies = map[string]string{}
	}
	p := &rec.Payload
	if p.QueryParams == nil {
		p.QueryParams = models.Values{}
	}
	if p.FormData == nil {
		p.FormData = models.Values{}
	}
	if p.Files == nil {
		p.Files = map[string]models.FileUpload{}
	}
	if p.MultipartData == nil {
		p.MultipartData = map[string]any{}
	}
	if p.URLEncoded == nil {
		p.URLEncoded = models.Values{}
	}
	return rec
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "1"
		}
		return ""
	default:
		return ""
	}
}

func asInt64(v any) int64 {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	default:
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return 0
}

// asValues converts an object or list to Values. A list becomes a map
// keyed by position, so an empty list is an empty map.
func asValues(v any) models.Values {
	out := models.Values{}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			out[k] = nested(child)
		}
	case []any:
		for i, child := range t {
			out[strconv.Itoa(i)] = nested(child)
		}
	}
	return out
}

func nested(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return asValues(t)
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = nested(child)
		}
		return out
	default:
		return v
	}
}

// asStringMap flattens an object or list to strings; nested values are
// kept as their JSON text.
func asStringMap(v any) map[string]string {
	out := map[string]string{}
	for k, child := range asValues(v) {
		switch child.(type) {
		case models.Values, []any:
			b, err := json.Marshal(child)
			if err != nil {
				continue
			}
			out[k] = string(b)
		default:
			out[k] = asString(child)
		}
	}
	return out
}

// decodeDay splits a day file into entries. It fails only when the top
// level is not a JSON array; elements are decoded one by one.
func decodeDay(data []byte) ([]entry, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, err
	}
	entries := make([]entry, len(elems))
	for i, raw := range elems {
		entries[i] = entry{rec: decodeRecord(raw), raw: raw}
	}
	return entries, nil
}

// encodeDay writes entries as an indented JSON array.
func encodeDay(entries []entry) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('[')
	for i, e := range entries {
		if i > 0 {
			compact.WriteByte(',')
		}
		b, err := e.encode()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		compact.Write(b)
	}
	compact.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "    "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
