package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/handlers/dto"
	"github.com/thereayou/sellboard/internal/logging"
	"github.com/thereayou/sellboard/internal/middleware"
	"github.com/thereayou/sellboard/internal/models"
	"github.com/thereayou/sellboard/internal/session"
)

const (
	msgTakenUsername = "That username is taken. Please choose a different one."
	msgTakenEmail    = "That email is taken. Please choose a different one."
)

type AuthHandler struct {
	base
	db *database.Database
}

func NewAuthHandler(db *database.Database, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{base: base{sessions: sessions}, db: db}
}

func (h *AuthHandler) RegisterPage(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", gin.H{"title": "Register", "form": dto.RegisterForm{}})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var form dto.RegisterForm
	errs := dto.FieldErrors{}
	if err := c.ShouldBind(&form); err != nil {
		errs = dto.FromBinding(err)
	}
	page := func() {
		form.Password, form.ConfirmPassword = "", ""
		h.render(c, http.StatusOK, "register.html", gin.H{"title": "Register", "form": form, "errors": errs})
	}
	if errs.Any() {
		page()
		return
	}

	ctx := c.Request.Context()
	if err := checkIdentityFree(ctx, h.db, form.Username, form.Email, uuid.Nil, errs); err != nil {
		h.fail(c, err, "check identity")
		return
	}
	if errs.Any() {
		page()
		return
	}

	hash, err := session.HashPassword(form.Password)
	if err != nil {
		h.fail(c, err, "hash password")
		return
	}

	user := &models.User{
		Username:     form.Username,
		Email:        form.Email,
		PasswordHash: hash,
	}
	if err := h.db.SaveUser(ctx, user); err != nil {
		if addDuplicate(err, errs) {
			page()
			return
		}
		h.fail(c, err, "create user")
		return
	}

	logging.FromContext(c).WithField("user", user.ID).Info("user registered")
	middleware.State(c).Notify(session.CategorySuccess, "Your account has been created! You are now able to log in")
	h.redirect(c, middleware.LoginPath)
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "login.html", gin.H{"title": "Login", "form": dto.LoginForm{}})
}

// Login устанавливает сессию и возвращает на исходную страницу
func (h *AuthHandler) Login(c *gin.Context) {
	var form dto.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		form.Password = ""
		h.render(c, http.StatusOK, "login.html", gin.H{"title": "Login", "form": form, "errors": dto.FromBinding(err)})
		return
	}

	user, err := h.sessions.Authenticate(c.Request.Context(), form.Email, form.Password)
	if errors.Is(err, session.ErrInvalidCredentials) {
		form.Password = ""
		middleware.State(c).Notify(session.CategoryDanger, "Login Unsuccessful. Please check email and password")
		h.render(c, http.StatusOK, "login.html", gin.H{"title": "Login", "form": form})
		return
	}
	if err != nil {
		h.fail(c, err, "authenticate")
		return
	}

	if err := h.sessions.Login(c.Writer, c.Request, user, form.Remember); err != nil {
		h.fail(c, err, "start session")
		return
	}
	logging.FromContext(c).WithField("user", user.ID).Info("user logged in")
	h.redirect(c, middleware.SafeNext(c.Query("next"), middleware.HomePath))
}

// Logout отзывает токен до его истечения
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Writer, c.Request); err != nil {
		h.fail(c, err, "logout")
		return
	}
	h.redirectWith(c, http.StatusFound, middleware.HomePath)
}

// addDuplicate records a store-level identity conflict as a field error.
func addDuplicate(err error, errs dto.FieldErrors) bool {
	var dup *database.DuplicateIdentityError
	if !errors.As(err, &dup) {
		return false
	}
	switch dup.Field {
	case "username":
		errs.Add("Username", msgTakenUsername)
	case "email":
		errs.Add("Email", msgTakenEmail)
	default:
		errs.Add(dto.FormKey, "That username or email is already in use.")
	}
	return true
}
