package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/handlers"
	"github.com/thereayou/sellboard/internal/logging"
	"github.com/thereayou/sellboard/internal/middleware"
	"github.com/thereayou/sellboard/internal/pictures"
	"github.com/thereayou/sellboard/internal/session"
	ws "github.com/thereayou/sellboard/internal/websocket"
)

// maxUploadBytes caps the body of the picture-accepting forms.
const maxUploadBytes = 16 << 20

type RouterDeps struct {
	DB        *database.Database
	Sessions  *session.Manager
	Saver     *pictures.Saver
	Hub       *ws.Hub
	Log       logrus.FieldLogger
	StaticDir string
	PerPage   int
}

func NewRouter(d RouterDeps) (*gin.Engine, error) {
	tmpl, err := handlers.Templates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(logging.RequestLogger(d.Log), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromContext(c).WithField("panic", recovered).Error("handler panicked")
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.SetHTMLTemplate(tmpl)

	authH := handlers.NewAuthHandler(d.DB, d.Sessions)
	userH := handlers.NewUserHandler(d.DB, d.Sessions, d.Saver, d.PerPage)
	sellH := handlers.NewSellHandler(d.DB, d.Sessions, d.Saver, d.Hub, d.PerPage)
	wsH := handlers.NewWebSocketHandler(d.Hub)

	Endpoints(r, d.Sessions, d.DB, authH, userH, sellH)

	r.Static("/static", d.StaticDir)
	r.Static(handlers.PictureURLPrefix, d.Saver.Dir)
	r.GET("/feed/ws", wsH.HandleFeed)
	r.GET("/health", handlers.Health(d.DB))
	r.NoRoute(middleware.LoadIdentity(d.Sessions), sellH.NotFound)

	return r, nil
}

// Endpoints is the page route table. Guards run before the handler body.
func Endpoints(r *gin.Engine, sessions *session.Manager, db *database.Database,
	authH *handlers.AuthHandler, userH *handlers.UserHandler, sellH *handlers.SellHandler) {
	pages := r.Group("/", middleware.LoadIdentity(sessions))

	login := middleware.RequireLogin(sessions)
	anonymous := middleware.RequireAnonymous()
	owner := middleware.LoadOwnedSell(db, sellH.ErrorPage)
	upload := middleware.LimitBody(maxUploadBytes, sellH.ErrorPage)

	// Лента
	pages.GET("/", sellH.Home)
	pages.GET("/home", sellH.Home)
	pages.GET("/user/:username", userH.UserSells)

	// Вход и регистрация
	pages.GET("/register", anonymous, authH.RegisterPage)
	pages.POST("/register", anonymous, authH.Register)
	pages.GET("/login", anonymous, authH.LoginPage)
	pages.POST("/login", anonymous, authH.Login)
	pages.GET("/logout", authH.Logout)

	// Профиль
	pages.GET("/account", login, userH.Account)
	pages.POST("/account", login, upload, userH.UpdateAccount)

	// Объявления
	pages.GET("/sell/new", login, sellH.NewSellPage)
	pages.POST("/sell/new", login, upload, sellH.CreateSell)
	pages.GET("/sell/:id", sellH.GetSell)
	pages.GET("/sell/:id/update", login, owner, sellH.UpdateSellPage)
	pages.POST("/sell/:id/update", login, owner, sellH.UpdateSell)
	pages.POST("/sell/:id/delete", login, owner, sellH.DeleteSell)
}
