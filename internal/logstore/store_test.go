package logstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rsclarke/hookcatch/internal/models"
)

const testDate = "2024-03-05"

func record(method, path string, createdAt int64) models.CaptureRecord {
	return models.CaptureRecord{
		Method: method,
		Payload: models.PayloadBundle{
			QueryParams:   models.Values{},
			FormData:      models.Values{},
			Files:         map[string]models.FileUpload{},
			MultipartData: map[string]any{},
			URLEncoded:    models.Values{},
		},
		Headers:     map[string]string{},
		Cookies:     map[string]string{},
		CreatedAt:   createdAt,
		Path:        path,
		ContentType: "application/json; charset=utf-8",
	}
}

func paths(records []models.CaptureRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Path
	}
	return out
}

func TestAppendAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")
	s := New(dir)

	rec := record("POST", "/a", 1)
	rec.Payload.JSONData = map[string]any{"a": json.Number("1")}
	if err := s.Append(testDate, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := s.Read(testDate)
	if len(got) != 1 {
		t.Fatalf("Read returned %d records, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0], rec) {
		t.Errorf("Read()[0] = %+v, want %+v", got[0], rec)
	}

	data, err := os.ReadFile(filepath.Join(dir, testDate+".json"))
	if err != nil {
		t.Fatalf("day file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n    {") {
		t.Errorf("day file is not a pretty-printed array: %q", data[:min(len(data), 20)])
	}
}

func TestSequentialAppendsKeepOrder(t *testing.T) {
	s := New(t.TempDir())
	for i, p := range []string{"/1", "/2", "/3"} {
		if err := s.Append(testDate, record("GET", p, int64(i))); err != nil {
			t.Fatalf("Append %s: %v", p, err)
		}
	}
	if got := paths(s.Read(testDate)); !reflect.DeepEqual(got, []string{"/1", "/2", "/3"}) {
		t.Errorf("paths = %v", got)
	}
}

func TestAppendOverCorruptFile(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zapcore.WarnLevel)
	s := New(dir, WithLogger(zap.New(core)))

	if err := os.WriteFile(filepath.Join(dir, testDate+".json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := s.Read(testDate); len(got) != 0 {
		t.Errorf("Read of corrupt file = %v, want empty", got)
	}
	if err := s.Append(testDate, record("GET", "/x", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := paths(s.Read(testDate)); !reflect.DeepEqual(got, []string{"/x"}) {
		t.Errorf("paths = %v, want [/x]", got)
	}
	if logs.FilterMessage("unreadable day file, treating as empty").Len() == 0 {
		t.Error("expected a warning about the corrupt file")
	}
}

func TestReadMissingAndIdempotent(t *testing.T) {
	s := New(t.TempDir())
	if got := s.Read("2020-01-01"); got == nil || len(got) != 0 {
		t.Errorf("Read(missing) = %#v, want empty", got)
	}
	if _, err := s.Load("2020-01-01"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Load(missing) err = %v, want ErrFileNotFound", err)
	}

	if err := s.Append(testDate, record("GET", "/a", 1)); err != nil {
		t.Fatal(err)
	}
	first := s.Read(testDate)
	second := s.Read(testDate)
	if !reflect.DeepEqual(first, second) {
		t.Error("consecutive reads differ")
	}
}

func TestDeleteRecord(t *testing.T) {
	s := New(t.TempDir())
	for _, p := range []string{"A", "B", "C"} {
		if err := s.Append(testDate, record("GET", p, 0)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteRecord(testDate, 1); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if got := paths(s.Read(testDate)); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("paths = %v, want [A C]", got)
	}

	for _, idx := range []int{-1, 2, 10} {
		if err := s.DeleteRecord(testDate, idx); !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("DeleteRecord(%d) err = %v, want ErrRecordNotFound", idx, err)
		}
	}
	if err := s.DeleteRecord("2020-01-01", 0); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("DeleteRecord(missing file) err = %v, want ErrFileNotFound", err)
	}
}

func TestDeleteFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.Append(testDate, record("GET", "/", 0)); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile("2099-12-31.json"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("DeleteFile(missing) err = %v, want ErrFileNotFound", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("directory changed after failed delete: %d entries", len(entries))
	}

	if err := s.DeleteFile(testDate + ".json"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, testDate+".json")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}

func TestInvalidDates(t *testing.T) {
	s := New(t.TempDir())
	for _, d := range []string{"", "../etc/passwd", "2024-13-01", "2024-01-01/..", "today", "2024-1-1"} {
		if err := s.Append(d, record("GET", "/", 0)); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("Append(%q) err = %v, want ErrInvalidDate", d, err)
		}
		if err := s.DeleteFile(d); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("DeleteFile(%q) err = %v, want ErrInvalidDate", d, err)
		}
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	older := record("POST", "/o", 100)
	newer1 := record("POST", "/n1", 200)
	newer2 := record("GET", "/n2", 300)
	newer2.ContentType = ""
	for _, step := range []struct {
		date string
		rec  models.CaptureRecord
	}{
		{"2024-03-04", older},
		{"2024-03-05", newer1},
		{"2024-03-05", newer2},
	} {
		if err := s.Append(step.date, step.rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListFiles returned %d files, want 2", len(files))
	}
	if files[0].Date != "2024-03-05" || files[1].Date != "2024-03-04" {
		t.Errorf("order = %s, %s; want newest first", files[0].Date, files[1].Date)
	}

	f := files[0]
	if f.Filename != "2024-03-05.json" || f.Requests != 2 || f.LastRequest != 300 {
		t.Errorf("info = %+v", f)
	}
	if !reflect.DeepEqual(f.Methods, map[string]int{"POST": 1, "GET": 1}) {
		t.Errorf("Methods = %v", f.Methods)
	}
	if !reflect.DeepEqual(f.ContentTypes, map[string]int{"application/json": 1}) {
		t.Errorf("ContentTypes = %v", f.ContentTypes)
	}
	if f.Size <= 0 || f.Modified <= 0 {
		t.Errorf("size/modified not set: %+v", f)
	}
}

func TestListFilesMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"))
	files, err := s.ListFiles()
	if err != nil || len(files) != 0 {
		t.Errorf("ListFiles = %v, %v; want empty, nil", files, err)
	}
}

func TestDateFor(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	s := New(t.TempDir(), WithLocation(loc))
	ts := time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC)
	if got := s.DateFor(ts); got != "2024-03-06" {
		t.Errorf("DateFor = %s, want 2024-03-06", got)
	}
}

// Two appends that both read before either writes: the last writer wins
// and the first record is lost.
func TestConcurrentAppendLosesUpdate(t *testing.T) {
	s := New(t.TempDir())

	firstRead := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.afterRead = func(string) {
		once.Do(func() {
			close(firstRead)
			<-release
		})
	}

	done := make(chan error, 1)
	go func() { done <- s.Append(testDate, record("POST", "/first", 1)) }()

	<-firstRead
	if err := s.Append(testDate, record("POST", "/second", 2)); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Append: %v", err)
	}

	got := paths(s.Read(testDate))
	if !reflect.DeepEqual(got, []string{"/first"}) {
		t.Errorf("paths = %v, want only [/first] after the lost update", got)
	}
}

func TestLockedConcurrentAppendsKeepAll(t *testing.T) {
	s := New(t.TempDir(), WithLocking())

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Append(testDate, record("POST", "/", int64(i)))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if got := len(s.Read(testDate)); got != n {
		t.Errorf("persisted %d records, want %d", got, n)
	}
}

func TestPrimaryType(t *testing.T) {
	tests := map[string]string{
		"application/json; charset=utf-8": "application/json",
		"text/plain":                      "text/plain",
		"":                                "",
		" ; x=1":                          "",
	}
	for in, want := range tests {
		if got := PrimaryType(in); got != want {
			t.Errorf("PrimaryType(%q) = %q, want %q", in, got, want)
		}
	}
}

// phpDay is a day file as written by the PHP receiver: empty maps encoded as
// [] and content_length as a string.
const phpDay = `[
    {
        "method": "POST",
        "payload": {
            "query_params": [],
            "form_data": {"a": "1"},
            "files": [],
            "raw_body": "hello",
            "json_data": null,
            "xml_data": null,
            "multipart_data": [],
            "url_encoded": [],
            "binary_data": null,
            "text_data": "hello"
        },
        "headers": [],
        "cookies": [],
        "created_at": 1709641800,
        "path": "/a",
        "content_type": "text/plain",
        "content_length": "5",
        "user_agent": "curl/8.0",
        "remote_ip": "203.0.113.9"
    },
    {
        "method": "GET",
        "payload": {"query_params": ["x", "y"]},
        "headers": {"Host": "example.com", "X-Num": 7},
        "cookies": {},
        "created_at": "1709641801",
        "path": "/b"
    }
]`

func TestReadAndAppendPHPShapedFile(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zapcore.WarnLevel)
	s := New(dir, WithLogger(zap.New(core)))
	file := filepath.Join(dir, testDate+".json")
	if err := os.WriteFile(file, []byte(phpDay), 0o644); err != nil {
		t.Fatal(err)
	}

	got := s.Read(testDate)
	if len(got) != 2 {
		t.Fatalf("Read returned %d records, want 2", len(got))
	}
	first := got[0]
	if first.ContentLength != 5 || first.CreatedAt != 1709641800 {
		t.Errorf("first numbers = %d/%d, want 5/1709641800", first.ContentLength, first.CreatedAt)
	}
	if first.Headers == nil || len(first.Headers) != 0 {
		t.Errorf("first headers = %#v, want empty map", first.Headers)
	}
	if first.Payload.FormData["a"] != "1" {
		t.Errorf("first form_data = %#v", first.Payload.FormData)
	}
	if first.Payload.TextData == nil || *first.Payload.TextData != "hello" {
		t.Errorf("first text_data = %v, want hello", first.Payload.TextData)
	}
	second := got[1]
	if second.CreatedAt != 1709641801 {
		t.Errorf("second created_at = %d", second.CreatedAt)
	}
	if want := (models.Values{"0": "x", "1": "y"}); !reflect.DeepEqual(second.Payload.QueryParams, want) {
		t.Errorf("second query_params = %#v, want %#v", second.Payload.QueryParams, want)
	}
	if second.Headers["Host"] != "example.com" || second.Headers["X-Num"] != "7" {
		t.Errorf("second headers = %#v", second.Headers)
	}

	if err := s.Append(testDate, record("PUT", "/c", 3)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := paths(s.Read(testDate)); !reflect.DeepEqual(got, []string{"/a", "/b", "/c"}) {
		t.Errorf("paths after append = %v, want [/a /b /c]", got)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("rewritten file is not an array: %v", err)
	}
	if raw[0]["content_length"] != "5" {
		t.Errorf("content_length rewritten as %#v, want the original string", raw[0]["content_length"])
	}
	if h, ok := raw[0]["headers"].([]any); !ok || len(h) != 0 {
		t.Errorf("headers rewritten as %#v, want the original []", raw[0]["headers"])
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected warnings: %v", logs.All())
	}
}

func TestNonArrayDayFileReadsEmpty(t *testing.T) {
	for _, body := range []string{`{"method":"GET"}`, `"x"`, `[1,`} {
		t.Run(body, func(t *testing.T) {
			dir := t.TempDir()
			core, logs := observer.New(zapcore.WarnLevel)
			s := New(dir, WithLogger(zap.New(core)))
			if err := os.WriteFile(filepath.Join(dir, testDate+".json"), []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if got := s.Read(testDate); len(got) != 0 {
				t.Errorf("Read = %v, want empty", got)
			}
			if logs.FilterMessage("unreadable day file, treating as empty").Len() != 1 {
				t.Error("expected one warning")
			}
		})
	}
}

func TestNonObjectElementKeepsPosition(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := os.WriteFile(filepath.Join(dir, testDate+".json"), []byte(`[42, {"path": "/b"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteRecord(testDate, 1); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, testDate+".json"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(strings.Fields(string(data)), ""); got != "[42]" {
		t.Errorf("file = %q, want [42]", got)
	}
}

func TestInvalidUTF8BodyIsReplaced(t *testing.T) {
	s := New(t.TempDir())
	rec := record("POST", "/bin", 1)
	rec.Payload.RawBody = "ok\xff"
	if err := s.Append(testDate, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := s.Read(testDate)
	if len(got) != 1 {
		t.Fatalf("Read returned %d records", len(got))
	}
	if got[0].Payload.RawBody != "ok\uFFFD" {
		t.Errorf("raw_body = %q, want invalid bytes replaced by U+FFFD", got[0].Payload.RawBody)
	}
}
