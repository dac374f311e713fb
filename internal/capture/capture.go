// Package capture turns inbound requests into CaptureRecords.
package capture

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rsclarke/hookcatch/internal/filter"
	"github.com/rsclarke/hookcatch/internal/models"
	"github.com/rsclarke/hookcatch/internal/payload"
)

// Inbound is an immutable snapshot of one request. Nothing downstream reads
// the live *http.Request.
type Inbound struct {
	Method        string
	RequestURI    string
	Header        http.Header
	Cookies       []*http.Cookie
	Body          []byte
	RawQuery      string
	Query         url.Values
	Form          url.Values
	Files         map[string]models.FileUpload
	RemoteAddr    string
	ContentLength string
}

// Normalizer builds CaptureRecords. It performs no I/O.
type Normalizer struct {
	Prefix            filter.Prefix
	TrustProxyHeaders bool
}

// Normalize assembles the record for in, stamped with now. Every field is
// set, falling back to its empty value.
func (n Normalizer) Normalize(in Inbound, now time.Time) models.CaptureRecord {
	contentType := in.Header.Get("Content-Type")

	return models.CaptureRecord{
		Method: in.Method,
		Payload: payload.Decode(payload.Input{
			ContentType: contentType,
			Body:        in.Body,
			RawQuery:    in.RawQuery,
			Query:       in.Query,
			Form:        in.Form,
			Files:       in.Files,
		}),
		Headers:       n.Prefix.Headers(in.Header),
		Cookies:       n.Prefix.Cookies(in.Cookies),
		CreatedAt:     now.UnixMilli(),
		Path:          in.RequestURI,
		ContentType:   contentType,
		ContentLength: parseContentLength(in.ContentLength),
		UserAgent:     in.Header.Get("User-Agent"),
		RemoteIP:      n.remoteIP(in),
	}
}

func (n Normalizer) remoteIP(in Inbound) string {
	if n.TrustProxyHeaders {
		if xff := in.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	return hostOnly(in.RemoteAddr)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// parseContentLength returns 0 for a missing or malformed header. The
// body length is deliberately not used as a substitute.
func parseContentLength(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
