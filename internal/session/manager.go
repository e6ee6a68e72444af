package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webcaf.gov.uk/webcaf/internal/config"
	"webcaf.gov.uk/webcaf/internal/pkg/logger"
)

const contextKey = "webcaf.session"

// touchInterval limits how often an unchanged session is re-saved just to
// extend its idle expiry.
const touchInterval = time.Minute

// Manager loads the session before the handler runs and saves it when the
// response starts.
type Manager struct {
	store Store
	cfg   config.SessionConfig
	now   func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, cfg config.SessionConfig) *Manager {
	if cfg.Cookie == "" {
		cfg.Cookie = "webcaf_session"
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 12 * time.Hour
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = cfg.Lifetime
	}
	return &Manager{store: store, cfg: cfg, now: time.Now}
}

// FromContext returns the request's session. Outside the middleware it
// returns a detached empty session.
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	return &Session{}
}

// Middleware attaches the session to the gin context.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, stored := m.load(c)
		c.Set(contextKey, sess)

		w := &commitWriter{ResponseWriter: c.Writer}
		w.commit = func() { m.commit(c.Request.Context(), w.Header(), sess, stored) }
		c.Writer = w

		c.Next()
		w.flush()
	}
}

// load returns the stored session, or a new one when the cookie is missing,
// unknown or past either timeout. stored reports whether the id exists in
// the store.
func (m *Manager) load(c *gin.Context) (*Session, bool) {
	now := m.now()
	fresh := &Session{ID: newID(), Data: Data{CreatedAt: now, LastSeen: now}}

	id, err := c.Cookie(m.cfg.Cookie)
	if err != nil || id == "" {
		return fresh, false
	}
	data, err := m.store.Load(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("session load failed", zap.Error(err))
		}
		return fresh, false
	}
	if now.Sub(data.CreatedAt) > m.cfg.Lifetime || now.Sub(data.LastSeen) > m.cfg.IdleTimeout {
		if err := m.store.Delete(c.Request.Context(), id); err != nil {
			logger.Warn("expired session delete failed", zap.Error(err))
		}
		return fresh, false
	}
	return &Session{ID: id, Data: *data}, true
}

func (m *Manager) expiresAt(d Data, now time.Time) time.Time {
	absolute := d.CreatedAt.Add(m.cfg.Lifetime)
	idle := now.Add(m.cfg.IdleTimeout)
	if idle.Before(absolute) {
		return idle
	}
	return absolute
}

func (m *Manager) commit(ctx context.Context, header http.Header, s *Session, stored bool) {
	now := m.now()

	if s.previousID != "" {
		if err := m.store.Delete(ctx, s.previousID); err != nil {
			logger.Warn("rotated session delete failed", zap.Error(err))
		}
	}

	if s.destroyed {
		if stored || s.previousID != "" {
			if err := m.store.Delete(ctx, s.ID); err != nil {
				logger.Warn("session delete failed", zap.Error(err))
			}
		}
		m.setCookie(header, "", -1)
		return
	}

	if !s.Data.worthStoring() {
		return
	}

	rotated := s.previousID != ""
	if !s.modified && !rotated && stored && now.Sub(s.Data.LastSeen) < touchInterval {
		return
	}
	s.Data.LastSeen = now
	if err := m.store.Save(ctx, s.ID, &s.Data, m.expiresAt(s.Data, now)); err != nil {
		logger.Error("session save failed", zap.Error(err))
		return
	}
	if !stored || rotated {
		m.setCookie(header, s.ID, 0)
	}
}

func (m *Manager) setCookie(header http.Header, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     m.cfg.Cookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   m.cfg.Secure,
		HttpOnly: m.cfg.HttpOnly,
		SameSite: http.SameSiteLaxMode,
	}
	header.Add("Set-Cookie", cookie.String())
}

// commitWriter runs commit once, just before the status line is written.
type commitWriter struct {
	gin.ResponseWriter
	commit func()
	done   bool
}

func (w *commitWriter) flush() {
	if w.done {
		return
	}
	w.done = true
	if !w.ResponseWriter.Written() {
		w.commit()
	}
}

func (w *commitWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) WriteHeaderNow() {
	w.flush()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *commitWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *commitWriter) WriteString(s string) (int, error) {
	w.flush()
	return w.ResponseWriter.WriteString(s)
}
