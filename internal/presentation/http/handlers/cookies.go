// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// MarkerCookie is the signed verified-email marker. Client script may
	// read it, so it is not HTTP-only.
	MarkerCookie = "verified_email"
	// ToastCookie carries a one-time success message.
	ToastCookie = "verify_toast"
	// SyncCookie tells the page to refresh its gate state once.
	SyncCookie = "gate_sync"

	toastVerified = "Email verified"
)

// CookieConfig controls the attributes of the verification cookies.
type CookieConfig struct {
	Secure    bool
	MarkerTTL time.Duration
	NoticeTTL time.Duration
}

func (cfg CookieConfig) setMarker(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(MarkerCookie, token, int(cfg.MarkerTTL.Seconds()), "/", "", cfg.Secure, false)
}

func (cfg CookieConfig) setNotices(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ToastCookie, toastVerified, int(cfg.NoticeTTL.Seconds()), "/", "", cfg.Secure, false)
	c.SetCookie(SyncCookie, "1", int(cfg.NoticeTTL.Seconds()), "/", "", cfg.Secure, false)
}

func (cfg CookieConfig) clear(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", cfg.Secure, false)
}

func cookieValue(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}
