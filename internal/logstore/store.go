// Package logstore persists capture records as one JSON array file per day.
//
// Appends are read-modify-write cycles over the whole day file. Without
// WithLocking two appends to the same day can interleave so that one of
// them is lost; the last writer wins.
package logstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/hookcatch/internal/logging"
	"github.com/rsclarke/hookcatch/internal/models"
)

const (
	dateLayout = "2006-01-02"
	fileExt    = ".json"
)

var (
	ErrFileNotFound   = errors.New("file not found")
	ErrRecordNotFound = errors.New("request not found")
	ErrInvalidDate    = errors.New("invalid date")
)

// Option configures a Store.
type Option func(*Store)

// WithLocking serialises read-modify-write cycles per date within this
// process.
func WithLocking() Option {
	return func(s *Store) { s.locking = true }
}

// WithLocation sets the time zone used by DateFor. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets the logger used to report unreadable day files.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is a directory of day files.
type Store struct {
	dir     string
	loc     *time.Location
	locking bool
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// afterRead runs between the read and the write of an update.
	afterRead func(date string)
}

// New returns a Store rooted at dir. The directory is created on first
// append.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		loc:    time.Local,
		logger: zap.NewNop(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Dir() string { return s.dir }

// DateFor returns the day file date for t in the store's location.
func (s *Store) DateFor(t time.Time) string {
	return t.In(s.loc).Format(dateLayout)
}

// ParseDate accepts "YYYY-MM-DD" or "YYYY-MM-DD.json" and returns the bare
// date. Anything else, including path components, is ErrInvalidDate.
func ParseDate(name string) (string, error) {
	date := strings.TrimSuffix(name, fileExt)
	if _, err := time.Parse(dateLayout, date); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, name)
	}
	return date, nil
}

// Filename returns the day file name for date.
func Filename(date string) string {
	return date + fileExt
}

func (s *Store) path(date string) string {
	return filepath.Join(s.dir, Filename(date))
}

// Append adds rec to the end of date's file, creating the directory and
// file as needed. Existing records are written back as they were read. A
// file whose top level is not a JSON array is replaced.
func (s *Store) Append(date string, rec models.CaptureRecord) error {
	date, err := ParseDate(date)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	return s.update(date, func(entries []entry, exists bool) ([]entry, error) {
		return append(entries, entry{rec: rec}), nil
	})
}

// Read returns the records for date in arrival order. A missing or
// malformed file reads as empty.
func (s *Store) Read(date string) []models.CaptureRecord {
	records, err := s.Load(date)
	if err != nil {
		return []models.CaptureRecord{}
	}
	return records
}

// Load is Read with the missing-file case reported as ErrFileNotFound.
func (s *Store) Load(date string) ([]models.CaptureRecord, error) {
	date, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	entries, exists, err := s.readFile(date)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrFileNotFound
	}
	return recordsOf(entries), nil
}

// DeleteRecord removes the record at index from date's file; later records
// shift down by one.
func (s *Store) DeleteRecord(date string, index int) error {
	date, err := ParseDate(date)
	if err != nil {
		return err
	}

	return s.update(date, func(entries []entry, exists bool) ([]entry, error) {
		if !exists {
			return nil, ErrFileNotFound
		}
		if index < 0 || index >= len(entries) {
			return nil, ErrRecordNotFound
		}
		return append(entries[:index], entries[index+1:]...), nil
	})
}

// DeleteFile removes date's file.
func (s *Store) DeleteFile(date string) error {
	date, err := ParseDate(date)
	if err != nil {
		return err
	}

	unlock := s.lock(date)
	defer unlock()

	if err := os.Remove(s.path(date)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("remove %s: %w", Filename(date), err)
	}
	return nil
}

// ListFiles summarises every day file, newest date first.
func (s *Store) ListFiles() ([]models.LogFileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.LogFileInfo{}, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	files := make([]models.LogFileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, err := ParseDate(e.Name())
		if err != nil || e.Name() != Filename(date) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		entries, _, err := s.readFile(date)
		if err != nil {
			continue
		}
		files = append(files, summarize(date, fi, recordsOf(entries)))
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Date > files[j].Date })
	return files, nil
}

func summarize(date string, fi fs.FileInfo, records []models.CaptureRecord) models.LogFileInfo {
	info := models.LogFileInfo{
		Filename:     Filename(date),
		Date:         date,
		Size:         fi.Size(),
		Modified:     fi.ModTime().Unix(),
		Requests:     len(records),
		Methods:      make(map[string]int),
		ContentTypes: make(map[string]int),
	}
	for _, rec := range records {
		info.Methods[rec.Method]++
		if ct := PrimaryType(rec.ContentType); ct != "" {
			info.ContentTypes[ct]++
		}
		if rec.CreatedAt > info.LastRequest {
			info.LastRequest = rec.CreatedAt
		}
	}
	return info
}

// PrimaryType returns the media type before any ";" parameters.
func PrimaryType(contentType string) string {
	primary, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(primary)
}

type mutation func(entries []entry, exists bool) ([]entry, error)

func (s *Store) update(date string, fn mutation) error {
	unlock := s.lock(date)
	defer unlock()

	entries, exists, err := s.readFile(date)
	if err != nil {
		return err
	}
	if s.afterRead != nil {
		s.afterRead(date)
	}

	entries, err = fn(entries, exists)
	if err != nil {
		return err
	}
	return s.writeFile(date, entries)
}

func (s *Store) lock(date string) func() {
	if !s.locking {
		return func() {}
	}
	s.mu.Lock()
	m, ok := s.locks[date]
	if !ok {
		m = &sync.Mutex{}
		s.locks[date] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// readFile reports exists=false for a missing file. A file whose top level
// is not a JSON array is logged and reads as an empty, existing file.
func (s *Store) readFile(date string) ([]entry, bool, error) {
	data, err := os.ReadFile(s.path(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []entry{}, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", Filename(date), err)
	}

	entries, err := decodeDay(data)
	if err != nil {
		s.logger.Warn("unreadable day file, treating as empty",
			logging.File(Filename(date)),
			zap.Error(err),
		)
		return []entry{}, true, nil
	}
	return entries, true, nil
}

func (s *Store) writeFile(date string, entries []entry) error {
	data, err := encodeDay(entries)
	if err != nil {
		return fmt.Errorf("encode %s: %w", Filename(date), err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+date+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", Filename(date), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", Filename(date), err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", Filename(date), err)
	}
	if err := os.Rename(tmpName, s.path(date)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", Filename(date), err)
	}
	return nil
}
