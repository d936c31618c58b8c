package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reached := false

	r := gin.New()
	r.POST("/upload", LimitBody(16, statusPage), func(c *gin.Context) {
		reached = true
		_, err := io.ReadAll(c.Request.Body)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body io.Reader, length int64) (*httptest.ResponseRecorder, bool) {
		reached = false
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.ContentLength = length
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w, reached
	}

	w, ran := post(strings.NewReader("small"), 5)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ran)

	w, ran = post(strings.NewReader(strings.Repeat("x", 17)), 17)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, ran)

	// длина не объявлена: обрезается при чтении
	w, ran = post(strings.NewReader(strings.Repeat("x", 64)), -1)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, ran)
}
