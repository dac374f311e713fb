package payload

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/clbanning/mxj/v2"

	"github.com/rsclarke/hookcatch/internal/models"
)

// mxj's default prefix for attribute keys.
const attrPrefix = "-"

// mxj's key for the character data of an element that also has attributes
// or children.
const mxjTextKey = "#text"

// AttributesKey holds an element's attributes in the decoded tree.
const AttributesKey = "@attributes"

// TextKey holds an element's own text when the element is decoded as a map.
const TextKey = "0"

// DecodeXML converts an XML document to a generic tree of maps, lists and
// strings. The root element is unwrapped so its children are the top-level
// keys; a root holding only text decodes to {"0": text}. It returns nil for
// documents that are not exactly one well-formed root element.
func DecodeXML(body []byte) any {
	if !singleRoot(body) {
		return nil
	}
	m, err := mxj.NewMapXml(body)
	if err != nil || len(m) == 0 {
		return nil
	}

	for _, root := range m {
		if s, ok := root.(string); ok {
			if strings.TrimSpace(s) == "" {
				return models.Values{}
			}
			return models.Values{TextKey: s}
		}
		return convertXML(root)
	}
	return nil
}

// singleRoot reports whether body is one well-formed element, optionally
// surrounded by whitespace, comments, processing instructions and a
// leading doctype.
func singleRoot(body []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = mxj.XmlCharsetReader

	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return roots == 1 && depth == 0
		}
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return false
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return false
			}
		case xml.Directive:
			if depth == 0 && roots > 0 {
				return false
			}
		}
	}
}

func convertXML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := models.Values{}
		var attrs models.Values
		for k, child := range t {
			if strings.HasPrefix(k, attrPrefix) {
				if attrs == nil {
					attrs = models.Values{}
				}
				attrs[strings.TrimPrefix(k, attrPrefix)] = child
				continue
			}
			if k == mxjTextKey {
				out[TextKey] = child
				continue
			}
			out[k] = convertXML(child)
		}
		if attrs != nil {
			out[AttributesKey] = attrs
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = convertXML(child)
		}
		return out
	default:
		return v
	}
}
