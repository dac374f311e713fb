// Package models defines the captured record types and the database entity types.
package models

// Values is a decoded form or query string. Each value is a string, a []any
// for bracketed list keys (a[]=1&a[]=2), or a nested Values for keyed
// brackets (a[b]=1).
type Values map[string]any

// CaptureRecord is one captured inbound request. It is never modified after
// it is built; every field is always present in its JSON form.
type CaptureRecord struct {
	Method        string            `json:"method"`
	Payload       PayloadBundle     `json:"payload"`
	Headers       map[string]string `json:"headers"`
	Cookies       map[string]string `json:"cookies"`
	CreatedAt     int64             `json:"created_at"`
	Path          string            `json:"path"`
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	UserAgent     string            `json:"user_agent"`
	RemoteIP      string            `json:"remote_ip"`
}

// PayloadBundle holds every interpretation of a request body. Only the slots
// matching the request's content type are populated; RawBody, QueryParams,
// FormData and Files are always filled from what the transport parsed.
type PayloadBundle struct {
	QueryParams   Values                `json:"query_params"`
	FormData      Values                `json:"form_data"`
	Files         map[string]FileUpload `json:"files"`
	RawBody       string                `json:"raw_body"`
	JSONData      any                   `json:"json_data"`
	XMLData       any                   `json:"xml_data"`
	MultipartData map[string]any        `json:"multipart_data"`
	URLEncoded    Values                `json:"url_encoded"`
	BinaryData    *BinaryData           `json:"binary_data"`
	TextData      *string               `json:"text_data"`
}

// FileUpload describes one uploaded multipart file part.
type FileUpload struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	TmpName string `json:"tmp_name"`
	Error   int    `json:"error"`
}

// BinaryData is the octet-stream slot.
type BinaryData struct {
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
	Base64      string `json:"base64"`
}

// LogFileInfo summarises one day file for the dashboard listing.
type LogFileInfo struct {
	Filename     string         `json:"filename"`
	Date         string         `json:"date"`
	Size         int64          `json:"size"`
	Modified     int64          `json:"modified"`
	Requests     int            `json:"requests"`
	Methods      map[string]int `json:"methods"`
	ContentTypes map[string]int `json:"content_types"`
	LastRequest  int64          `json:"last_request"`
}

// APIKey represents an API key record in the database.
type APIKey struct {
	ID        int64
	KeyPrefix string
	KeyHash   []byte
	Label     *string
	CreatedAt int64
	RevokedAt *int64
}

// Session represents a dashboard login session.
type Session struct {
	ID        string
	Username  string
	CreatedAt int64
	ExpiresAt int64
}
