package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/logging"
	"github.com/thereayou/sellboard/internal/models"
	"github.com/thereayou/sellboard/internal/session"
)

const (
	StateKey = "requestState"
	SellKey  = "ownedSell"

	LoginPath = "/login"
	HomePath  = "/home"
)

// ErrorPage renders an error response for status and aborts the chain.
type ErrorPage func(c *gin.Context, status int)

type SellFinder interface {
	GetSell(ctx context.Context, id uuid.UUID) (*models.Sell, error)
}

// LoadIdentity resolves the caller once per request and stores the request state.
func LoadIdentity(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.Resolve(c.Request)
		if err != nil {
			logging.FromContext(c).WithError(err).Warn("resolve identity, continuing as anonymous")
		}
		c.Set(StateKey, session.NewRequestState(id))
		c.Next()
	}
}

// State returns the request state; outside LoadIdentity it is anonymous.
func State(c *gin.Context) *session.RequestState {
	if v, ok := c.Get(StateKey); ok {
		if st, ok := v.(*session.RequestState); ok {
			return st
		}
	}
	st := session.NewRequestState(session.Anonymous())
	c.Set(StateKey, st)
	return st
}

// RequireLogin отправляет анонимов на страницу входа с возвратом назад
func RequireLogin(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if State(c).Identity.IsAuthenticated() {
			c.Next()
			return
		}
		notice := session.Notice{Category: session.CategoryInfo, Message: "Please log in to access this page."}
		if err := m.Flash(c.Writer, c.Request, notice); err != nil {
			logging.FromContext(c).WithError(err).Warn("flash login notice")
		}
		target := LoginPath + "?" + url.Values{"next": {c.Request.URL.RequestURI()}}.Encode()
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}

// RequireAnonymous guards register and login against signed-in callers.
func RequireAnonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		if State(c).Identity.IsAuthenticated() {
			c.Redirect(http.StatusFound, HomePath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// LoadOwnedSell resolves :id and lets only the author through.
// Missing or malformed ids get 404, other callers 403.
func LoadOwnedSell(sells SellFinder, fail ErrorPage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			fail(c, http.StatusNotFound)
			return
		}

		sell, err := sells.GetSell(c.Request.Context(), id)
		if errors.Is(err, database.ErrNotFound) {
			fail(c, http.StatusNotFound)
			return
		}
		if err != nil {
			logging.FromContext(c).WithError(err).Error("load sell")
			fail(c, http.StatusInternalServerError)
			return
		}

		if !State(c).Identity.Is(sell.UserID) {
			fail(c, http.StatusForbidden)
			return
		}

		c.Set(SellKey, sell)
		c.Next()
	}
}

func OwnedSell(c *gin.Context) *models.Sell {
	return c.MustGet(SellKey).(*models.Sell)
}

// SafeNext returns next when it is a path on this site, otherwise fallback.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
