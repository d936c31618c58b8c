package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/handlers/dto"
	"github.com/thereayou/sellboard/internal/logging"
	"github.com/thereayou/sellboard/internal/middleware"
	"github.com/thereayou/sellboard/internal/models"
	"github.com/thereayou/sellboard/internal/pictures"
	"github.com/thereayou/sellboard/internal/session"
)

// FeedPublisher gets told about listings appearing and disappearing.
type FeedPublisher interface {
	SellCreated(sell *models.Sell) error
	SellDeleted(id uuid.UUID) error
}

type SellHandler struct {
	base
	db      *database.Database
	saver   *pictures.Saver
	feed    FeedPublisher
	perPage int
}

func NewSellHandler(db *database.Database, sessions *session.Manager, saver *pictures.Saver, feed FeedPublisher, perPage int) *SellHandler {
	return &SellHandler{base: base{sessions: sessions}, db: db, saver: saver, feed: feed, perPage: perPage}
}

// Home отдаёт общую ленту, новые объявления первыми
func (h *SellHandler) Home(c *gin.Context) {
	page, err := h.db.ListSells(c.Request.Context(), database.PageQuery{Page: pageParam(c), PerPage: h.perPage})
	if errors.Is(err, database.ErrNotFound) {
		h.ErrorPage(c, http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(c, err, "list sells")
		return
	}
	h.render(c, http.StatusOK, "home.html", gin.H{"sells": page})
}

func (h *SellHandler) NewSellPage(c *gin.Context) {
	h.render(c, http.StatusOK, "create_sell.html", gin.H{"title": "New Sell", "legend": "New Sell", "form": dto.SellForm{}})
}

// CreateSell сохраняет картинку (если есть) до записи объявления
func (h *SellHandler) CreateSell(c *gin.Context) {
	user, _ := middleware.State(c).Identity.User()
	ctx := c.Request.Context()

	var form dto.SellForm
	errs := dto.FieldErrors{}
	if err := c.ShouldBind(&form); err != nil {
		errs = dto.FromBinding(err)
	}
	upload, err := pictureUpload(c, errs)
	if err != nil {
		h.fail(c, err, "read picture")
		return
	}

	page := func() {
		h.render(c, http.StatusOK, "create_sell.html", gin.H{
			"title": "New Sell", "legend": "New Sell", "form": form, "errors": errs,
		})
	}
	if errs.Any() {
		page()
		return
	}

	sell := &models.Sell{
		Title:       form.Title,
		Content:     form.Content,
		Price:       form.Price,
		PictureFile: models.DefaultImage,
		UserID:      user.ID,
	}
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
		sell.PictureFile = name
	}

	if err := h.db.CreateSell(ctx, sell); err != nil {
		h.fail(c, err, "create sell")
		return
	}
	sell.Author = *user

	log := logging.FromContext(c).WithField("sell", sell.ID)
	if err := h.feed.SellCreated(sell); err != nil {
		log.WithError(err).Warn("publish sell_created")
	}
	log.Info("sell created")

	middleware.State(c).Notify(session.CategorySuccess, "Your new sell has been created!")
	h.redirect(c, middleware.HomePath)
}

func (h *SellHandler) GetSell(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.ErrorPage(c, http.StatusNotFound)
		return
	}

	sell, err := h.db.GetSell(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		h.ErrorPage(c, http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(c, err, "get sell")
		return
	}

	h.render(c, http.StatusOK, "sell.html", gin.H{
		"title":   sell.Title,
		"sell":    sell,
		"isOwner": middleware.State(c).Identity.Is(sell.UserID),
	})
}

// UpdateSellPage выполняется только для автора (см. LoadOwnedSell)
func (h *SellHandler) UpdateSellPage(c *gin.Context) {
	sell := middleware.OwnedSell(c)
	form := dto.SellUpdateForm{Title: sell.Title, Content: sell.Content}
	h.render(c, http.StatusOK, "create_sell.html", gin.H{
		"title": "Update sell", "legend": "Update sell", "update": true, "form": form,
	})
}

func (h *SellHandler) UpdateSell(c *gin.Context) {
	sell := middleware.OwnedSell(c)

	var form dto.SellUpdateForm
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, http.StatusOK, "create_sell.html", gin.H{
			"title": "Update sell", "legend": "Update sell", "update": true,
			"form": form, "errors": dto.FromBinding(err),
		})
		return
	}

	sell.Title = form.Title
	sell.Content = form.Content
	if err := h.db.UpdateSell(c.Request.Context(), sell); err != nil {
		h.fail(c, err, "update sell")
		return
	}

	middleware.State(c).Notify(session.CategorySuccess, "Your sell has been updated!")
	h.redirect(c, "/sell/"+sell.ID.String())
}

func (h *SellHandler) DeleteSell(c *gin.Context) {
	sell := middleware.OwnedSell(c)

	err := h.db.DeleteSell(c.Request.Context(), sell)
	if errors.Is(err, database.ErrNotFound) {
		h.ErrorPage(c, http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(c, err, "delete sell")
		return
	}

	log := logging.FromContext(c).WithField("sell", sell.ID)
	if err := h.feed.SellDeleted(sell.ID); err != nil {
		log.WithError(err).Warn("publish sell_deleted")
	}
	log.Info("sell deleted")

	middleware.State(c).Notify(session.CategorySuccess, "Your sell has been deleted!")
	h.redirect(c, middleware.HomePath)
}

// pageParam reads ?page; anything that is not an integer means page 1.
func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil {
		return 1
	}
	return page
}
