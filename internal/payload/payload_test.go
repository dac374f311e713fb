package payload

import (
	"encoding/json"
	"net/url"
	"reflect"
	"sort"
	"testing"

	"github.com/rsclarke/hookcatch/internal/models"
)

// populatedSlots lists the content-type specific slots that hold a value.
func populatedSlots(p models.PayloadBundle) []string {
	var slots []string
	if p.JSONData != nil {
		slots = append(slots, "json_data")
	}
	if p.XMLData != nil {
		slots = append(slots, "xml_data")
	}
	if len(p.MultipartData) > 0 {
		slots = append(slots, "multipart_data")
	}
	if len(p.URLEncoded) > 0 {
		slots = append(slots, "url_encoded")
	}
	if p.BinaryData != nil {
		slots = append(slots, "binary_data")
	}
	if p.TextData != nil {
		slots = append(slots, "text_data")
	}
	sort.Strings(slots)
	return slots
}

func TestDecodePopulatesOnlyMatchingSlot(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		form        url.Values
		files       map[string]models.FileUpload
		want        []string
	}{
		{"json", "application/json", `{"a":1}`, nil, nil, []string{"json_data"}},
		{"json with charset", "application/json; charset=utf-8", `[1,2]`, nil, nil, []string{"json_data"}},
		{"xml", "application/xml", `<root><a>1</a></root>`, nil, nil, []string{"xml_data"}},
		{"text xml", "text/xml", `<root><a>1</a></root>`, nil, nil, []string{"xml_data"}},
		{"urlencoded", "application/x-www-form-urlencoded", "a=1&b=2", url.Values{"a": {"1"}, "b": {"2"}}, nil, []string{"url_encoded"}},
		{
			"multipart", "multipart/form-data; boundary=xyz", "--xyz--",
			url.Values{"field": {"v"}},
			map[string]models.FileUpload{"upload": {Name: "a.txt", Type: "text/plain", Size: 3}},
			[]string{"multipart_data"},
		},
		{"text", "text/plain", "hello", nil, nil, []string{"text_data"}},
		{"binary", "application/octet-stream", "\x00\x01\x02", nil, nil, []string{"binary_data"}},
		{"unknown type", "application/x-custom", "whatever", nil, nil, nil},
		{"no content type", "", "whatever", nil, nil, nil},
		{"malformed content type", ";;;", "whatever", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decode(Input{ContentType: tt.contentType, Body: []byte(tt.body), Form: tt.form, Files: tt.files})

			got := populatedSlots(p)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("populated slots = %v, want %v", got, tt.want)
			}
			if p.RawBody != tt.body {
				t.Errorf("RawBody = %q, want %q", p.RawBody, tt.body)
			}
		})
	}
}

func TestDecodeEmptyBodyLeavesSlotsEmpty(t *testing.T) {
	types := []string{
		"application/json",
		"application/xml",
		"application/x-www-form-urlencoded",
		"text/plain",
		"application/octet-stream",
	}
	for _, ct := range types {
		t.Run(ct, func(t *testing.T) {
			p := Decode(Input{ContentType: ct})
			if got := populatedSlots(p); len(got) != 0 {
				t.Errorf("populated slots = %v, want none", got)
			}
			if p.RawBody != "" {
				t.Errorf("RawBody = %q, want empty", p.RawBody)
			}
		})
	}
}

func TestDecodeAlwaysOnSlotsAreNeverNil(t *testing.T) {
	p := Decode(Input{})
	if p.QueryParams == nil || p.FormData == nil || p.Files == nil || p.MultipartData == nil || p.URLEncoded == nil {
		t.Errorf("expected empty, non-nil collections: %+v", p)
	}
}

func TestDecodeJSON(t *testing.T) {
	p := Decode(Input{ContentType: "application/json", Body: []byte(`{"a":1,"b":{"c":[true,null]}}`)})

	want := map[string]any{
		"a": json.Number("1"),
		"b": map[string]any{"c": []any{true, nil}},
	}
	if !reflect.DeepEqual(p.JSONData, want) {
		t.Errorf("JSONData = %#v, want %#v", p.JSONData, want)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	for _, body := range []string{`{"a":`, `not json`, `{"a":1} trailing`} {
		t.Run(body, func(t *testing.T) {
			p := Decode(Input{ContentType: "application/json", Body: []byte(body)})
			if p.JSONData != nil {
				t.Errorf("JSONData = %#v, want nil", p.JSONData)
			}
			if p.RawBody != body {
				t.Errorf("RawBody = %q, want %q", p.RawBody, body)
			}
		})
	}
}

func TestDecodeXML(t *testing.T) {
	body := `<?xml version="1.0"?><root><a>1</a><i>x</i><i>y</i><b id="7">text</b></root>`
	p := Decode(Input{ContentType: "application/xml", Body: []byte(body)})

	tree, ok := p.XMLData.(models.Values)
	if !ok {
		t.Fatalf("XMLData = %#v, want models.Values", p.XMLData)
	}
	if tree["a"] != "1" {
		t.Errorf("a = %#v, want %q", tree["a"], "1")
	}
	if !reflect.DeepEqual(tree["i"], []any{"x", "y"}) {
		t.Errorf("i = %#v, want [x y]", tree["i"])
	}
	b, ok := tree["b"].(models.Values)
	if !ok {
		t.Fatalf("b = %#v, want models.Values", tree["b"])
	}
	attrs, ok := b[AttributesKey].(models.Values)
	if !ok || attrs["id"] != "7" {
		t.Errorf("b attributes = %#v, want id=7", b[AttributesKey])
	}
}

func TestDecodeMalformedXML(t *testing.T) {
	for _, body := range []string{
		`<root><a>1</root>`,
		`<r><x>1</x>trailing</r>junk<`,
		`<r>1</r><r>2</r>`,
		`<r>1</r>tail`,
		`not xml`,
	} {
		t.Run(body, func(t *testing.T) {
			p := Decode(Input{ContentType: "text/xml", Body: []byte(body)})
			if p.XMLData != nil {
				t.Errorf("XMLData = %#v, want nil", p.XMLData)
			}
			if p.RawBody != body {
				t.Errorf("RawBody = %q, want %q", p.RawBody, body)
			}
		})
	}
}

func TestDecodeXMLAllowsTrailingMisc(t *testing.T) {
	body := "<?xml version=\"1.0\"?>\n<!-- head --><r><x>1</x></r>\n<!-- tail --><?pi ok?>\n"
	got := DecodeXML([]byte(body))
	want := models.Values{"x": "1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeXML = %#v, want %#v", got, want)
	}
}

func TestDecodeXMLText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{
			name: "text only root",
			body: `<a>hello</a>`,
			want: models.Values{TextKey: "hello"},
		},
		{
			name: "empty root",
			body: `<a> </a>`,
			want: models.Values{},
		},
		{
			name: "text with attributes",
			body: `<a><b id="7">text</b></a>`,
			want: models.Values{"b": models.Values{
				TextKey:       "text",
				AttributesKey: models.Values{"id": "7"},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeXML([]byte(tt.body))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeXML = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeBinary(t *testing.T) {
	p := Decode(Input{ContentType: "application/octet-stream", Body: []byte("hi!")})
	want := &models.BinaryData{Size: 3, ContentType: "application/octet-stream", Base64: "aGkh"}
	if !reflect.DeepEqual(p.BinaryData, want) {
		t.Errorf("BinaryData = %+v, want %+v", p.BinaryData, want)
	}
}

func TestDecodeMultipartMergesFieldsAndFiles(t *testing.T) {
	file := models.FileUpload{Name: "a.txt", Type: "text/plain", Size: 3}
	p := Decode(Input{
		ContentType: "multipart/form-data; boundary=x",
		Form:        url.Values{"title": {"hello"}, "tags[]": {"a", "b"}},
		Files:       map[string]models.FileUpload{"doc": file},
	})

	want := map[string]any{
		"title": "hello",
		"tags":  []any{"a", "b"},
		"doc":   file,
	}
	if !reflect.DeepEqual(p.MultipartData, want) {
		t.Errorf("MultipartData = %#v, want %#v", p.MultipartData, want)
	}
	if !reflect.DeepEqual(p.Files, map[string]models.FileUpload{"doc": file}) {
		t.Errorf("Files = %#v", p.Files)
	}
}

func TestDecodeQueryParamsAlwaysPopulated(t *testing.T) {
	p := Decode(Input{ContentType: "application/json", Body: []byte("{}"), Query: url.Values{"page": {"2"}}})
	if p.QueryParams["page"] != "2" {
		t.Errorf("QueryParams = %#v", p.QueryParams)
	}
}

func TestDecodeRawQueryKeepsOrder(t *testing.T) {
	p := Decode(Input{
		ContentType: "application/json",
		Body:        []byte("{}"),
		RawQuery:    "a[b]=1&a[]=2&c[]=1&c=3",
		Query:       url.Values{"ignored": {"x"}},
	})
	want := models.Values{
		"a": models.Values{"b": "1", "0": "2"},
		"c": "3",
	}
	if !reflect.DeepEqual(p.QueryParams, want) {
		t.Errorf("QueryParams = %#v, want %#v", p.QueryParams, want)
	}
}

func TestDecodeURLEncodedKeepsOrder(t *testing.T) {
	body := "x[]=1&x=2"
	p := Decode(Input{
		ContentType: "application/x-www-form-urlencoded",
		Body:        []byte(body),
		Form:        url.Values{"x[]": {"1"}, "x": {"2"}},
	})
	want := models.Values{"x": "2"}
	if !reflect.DeepEqual(p.URLEncoded, want) {
		t.Errorf("URLEncoded = %#v, want %#v", p.URLEncoded, want)
	}
	if !reflect.DeepEqual(p.FormData, want) {
		t.Errorf("FormData = %#v, want %#v", p.FormData, want)
	}
}
