package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rsclarke/hookcatch/internal/db"
	"github.com/rsclarke/hookcatch/internal/models"
)

const (
	SessionCookieName = "hookcatch_session"
	DefaultSessionTTL = 24 * time.Hour
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

// SessionManager keeps dashboard sessions in sqlite and hands them out as
// cookies holding a random session ID.
type SessionManager struct {
	db           *sql.DB
	ttl          time.Duration
	secureCookie bool
	now          func() time.Time
}

func NewSessionManager(d *sql.DB, ttl time.Duration, secureCookie bool) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{db: d, ttl: ttl, secureCookie: secureCookie, now: time.Now}
}

// Create starts a session for username and sets its cookie on w.
func (sm *SessionManager) Create(w http.ResponseWriter, username string) (*models.Session, error) {
	now := sm.now()
	s := models.Session{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(sm.ttl).Unix(),
	}
	if err := db.CreateSession(sm.db, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return &s, nil
}

// Get returns the live session named by r's cookie. Expired sessions are
// deleted.
func (sm *SessionManager) Get(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return nil, ErrInvalidSession
	}

	s, err := db.GetSession(sm.db, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if s == nil {
		return nil, ErrInvalidSession
	}
	if sm.now().Unix() >= s.ExpiresAt {
		_ = db.DeleteSession(sm.db, s.ID)
		return nil, ErrExpiredSession
	}
	return s, nil
}

// Clear ends the session named by r's cookie, if any, and expires the
// cookie on w.
func (sm *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	var err error
	if cookie, cerr := r.Cookie(SessionCookieName); cerr == nil {
		err = db.DeleteSession(sm.db, cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return err
}

// Prune deletes expired sessions.
func (sm *SessionManager) Prune() (int64, error) {
	return db.DeleteExpiredSessions(sm.db, sm.now())
}
