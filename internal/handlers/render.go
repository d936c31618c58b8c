package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/sellboard/internal/handlers/dto"
	"github.com/thereayou/sellboard/internal/logging"
	"github.com/thereayou/sellboard/internal/middleware"
	"github.com/thereayou/sellboard/internal/session"
)

// base holds what every page handler needs to answer a request.
type base struct {
	sessions *session.Manager
}

// render shows a page with the caller's identity and every pending notice:
// the ones flashed by earlier requests and the ones added by this one.
func (b *base) render(c *gin.Context, status int, name string, data gin.H) {
	st := middleware.State(c)

	notices, err := b.sessions.Notices(c.Writer, c.Request)
	if err != nil {
		logging.FromContext(c).WithError(err).Warn("read flashed notices")
	}
	notices = append(notices, st.TakeOutgoing()...)

	if data == nil {
		data = gin.H{}
	}
	if _, ok := data["errors"]; !ok {
		data["errors"] = dto.FieldErrors{}
	}
	if u, ok := st.Identity.User(); ok {
		data["currentUser"] = u
	}
	data["notices"] = notices
	c.HTML(status, name, data)
}

// redirect flashes this request's notices and sends the browser on with 303.
func (b *base) redirect(c *gin.Context, location string) {
	b.redirectWith(c, http.StatusSeeOther, location)
}

func (b *base) redirectWith(c *gin.Context, status int, location string) {
	notices := middleware.State(c).TakeOutgoing()
	if err := b.sessions.Flash(c.Writer, c.Request, notices...); err != nil {
		logging.FromContext(c).WithError(err).Warn("flash notices")
	}
	c.Redirect(status, location)
}

var errorMessages = map[int]string{
	http.StatusNotFound:              "That page does not exist.",
	http.StatusForbidden:             "You don't have permission to do that.",
	http.StatusRequestEntityTooLarge: "That upload is too large.",
	http.StatusInternalServerError:   "Something went wrong. Please try again later.",
}

// ErrorPage renders the error page for status and stops the handler chain.
func (b *base) ErrorPage(c *gin.Context, status int) {
	b.render(c, status, "error.html", gin.H{
		"title":   http.StatusText(status),
		"status":  status,
		"message": errorMessages[status],
	})
	c.Abort()
}

// fail logs err and answers 500.
func (b *base) fail(c *gin.Context, err error, msg string) {
	logging.FromContext(c).WithError(err).Error(msg)
	_ = c.Error(err)
	b.ErrorPage(c, http.StatusInternalServerError)
}

func (b *base) NotFound(c *gin.Context) {
	b.ErrorPage(c, http.StatusNotFound)
}
