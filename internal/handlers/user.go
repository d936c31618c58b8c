package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/handlers/dto"
	"github.com/thereayou/sellboard/internal/logging"
	"github.com/thereayou/sellboard/internal/middleware"
	"github.com/thereayou/sellboard/internal/pictures"
	"github.com/thereayou/sellboard/internal/session"
)

type UserHandler struct {
	base
	db      *database.Database
	saver   *pictures.Saver
	perPage int
}

func NewUserHandler(db *database.Database, sessions *session.Manager, saver *pictures.Saver, perPage int) *UserHandler {
	return &UserHandler{base: base{sessions: sessions}, db: db, saver: saver, perPage: perPage}
}

// Account показывает профиль текущего пользователя
func (h *UserHandler) Account(c *gin.Context) {
	user, _ := middleware.State(c).Identity.User()
	form := dto.AccountForm{Username: user.Username, Email: user.Email}
	h.render(c, http.StatusOK, "account.html", gin.H{"title": "Account", "form": form})
}

// UpdateAccount обновляет профиль и, если передана, картинку
func (h *UserHandler) UpdateAccount(c *gin.Context) {
	user, _ := middleware.State(c).Identity.User()
	ctx := c.Request.Context()

	var form dto.AccountForm
	errs := dto.FieldErrors{}
	if err := c.ShouldBind(&form); err != nil {
		errs = dto.FromBinding(err)
	} else if err := checkIdentityFree(ctx, h.db, form.Username, form.Email, user.ID, errs); err != nil {
		h.fail(c, err, "check identity")
		return
	}

	upload, err := pictureUpload(c, errs)
	if err != nil {
		h.fail(c, err, "read picture")
		return
	}

	page := func() {
		h.render(c, http.StatusOK, "account.html", gin.H{"title": "Account", "form": form, "errors": errs})
	}
	if errs.Any() {
		page()
		return
	}

	updated := *user
	updated.Username = form.Username
	updated.Email = form.Email
	if upload != nil {
		name, err := h.saver.Save(ctx, upload)
		if msg, ok := pictureRejected(err); ok {
			errs.Add("Picture", msg)
			page()
			return
		}
		if err != nil {
			h.fail(c, err, "save picture")
			return
		}
		updated.ImageFile = name
	}

	if err := h.db.UpdateUser(ctx, &updated); err != nil {
		if addDuplicate(err, errs) {
			page()
			return
		}
		h.fail(c, err, "update user")
		return
	}
	*user = updated

	logging.FromContext(c).WithField("user", user.ID).Info("account updated")
	middleware.State(c).Notify(session.CategorySuccess, "Your account has been updated!")
	h.redirect(c, "/account")
}

// UserSells показывает ленту объявлений одного автора
func (h *UserHandler) UserSells(c *gin.Context) {
	ctx := c.Request.Context()

	author, err := h.db.FindUserByUsername(ctx, c.Param("username"))
	if errors.Is(err, database.ErrNotFound) {
		h.ErrorPage(c, http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(c, err, "find author")
		return
	}

	page, err := h.db.ListSells(ctx, database.PageQuery{
		Page:     pageParam(c),
		PerPage:  h.perPage,
		AuthorID: &author.ID,
	})
	if errors.Is(err, database.ErrNotFound) {
		h.ErrorPage(c, http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(c, err, "list author sells")
		return
	}

	h.render(c, http.StatusOK, "user_sell.html", gin.H{"title": author.Username, "user": author, "sells": page})
}

type identityChecker interface {
	UsernameTaken(ctx context.Context, username string, except uuid.UUID) (bool, error)
	EmailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error)
}

// checkIdentityFree adds field errors for a username or email owned by
// someone other than except.
func checkIdentityFree(ctx context.Context, db identityChecker, username, email string, except uuid.UUID, errs dto.FieldErrors) error {
	taken, err := db.UsernameTaken(ctx, username, except)
	if err != nil {
		return err
	}
	if taken {
		errs.Add("Username", msgTakenUsername)
	}

	taken, err = db.EmailTaken(ctx, email, except)
	if err != nil {
		return err
	}
	if taken {
		errs.Add("Email", msgTakenEmail)
	}
	return nil
}

// pictureRejected maps a Saver error caused by the upload itself to a
// field message.
func pictureRejected(err error) (string, bool) {
	switch {
	case errors.Is(err, pictures.ErrImageTooLarge):
		return "Image dimensions are too large.", true
	case errors.Is(err, pictures.ErrUnsupportedImageFormat):
		return "Unsupported image format.", true
	}
	return "", false
}

var allowedPictureExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// pictureUpload returns the optional "picture" file. A file with another
// extension becomes a field error.
func pictureUpload(c *gin.Context, errs dto.FieldErrors) (*multipart.FileHeader, error) {
	fh, err := c.FormFile("picture")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		errs.Add("Picture", "The upload is too large.")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fh.Filename == "" && fh.Size == 0 {
		return nil, nil
	}
	if !allowedPictureExt[strings.ToLower(filepath.Ext(fh.Filename))] {
		errs.Add("Picture", "File does not have an approved extension: jpg, jpeg, png")
		return nil, nil
	}
	return fh, nil
}
