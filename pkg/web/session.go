package web

import (
	"net/http"

	"github.com/cupogo/andvari/models/oid"
)

const (
	dftCookieName = "agsid"
	headerSession = "Conversation-ID"
)

// sessionID reads the browser session from its cookie, a new one is issued on first contact
func (s *server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		if id := oid.Cast(c.Value); !id.IsZero() {
			return id.String()
		}
	}
	id := oid.NewID(oid.OtEvent)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    id.String(),
		Path:     s.cfg.CookiePath,
		Domain:   s.cfg.CookieDomain,
		MaxAge:   s.cfg.CookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	logger().Debugw("new session", "id", id)
	return id.String()
}
