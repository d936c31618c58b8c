package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thereayou/sellboard/internal/config"
	"github.com/thereayou/sellboard/internal/database"
	"github.com/thereayou/sellboard/internal/pictures"
	"github.com/thereayou/sellboard/internal/session"
	ws "github.com/thereayou/sellboard/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	Router *gin.Engine
	DB     *database.Database
	Redis  *redis.Client
	Hub    *ws.Hub

	cfg  *config.Config
	log  *logrus.Logger
	http *http.Server
}

func NewServer(cfg *config.Config, log *logrus.Logger) (*Server, error) {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "%s connect failed", cfg.DBDriver)
	}

	s := &Server{DB: db, cfg: cfg, log: log}

	var revocations session.Revocations
	if cfg.RedisURL == "" {
		log.Info("REDIS_URL not set, keeping revoked sessions in memory")
		revocations = session.NewMemoryRevocations()
	} else {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, pkgerrors.Wrap(err, "invalid REDIS_URL")
		}
		rdb := redis.NewClient(redisOpts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			db.Close()
			return nil, pkgerrors.Wrap(err, "redis connect failed")
		}
		s.Redis = rdb
		revocations = session.NewRedisRevocations(rdb)
	}

	saver := pictures.NewSaver(cfg.PictureDir)
	if err := saver.EnsureDir(); err != nil {
		s.close()
		return nil, err
	}

	sessions := session.NewManager(db, revocations, session.Options{
		Secret:      cfg.SecretKey,
		SessionTTL:  cfg.SessionTTL,
		RememberTTL: cfg.RememberTTL,
		Secure:      cfg.Env == "production",
	})

	s.Hub = ws.NewHub(log)
	s.Router, err = NewRouter(RouterDeps{
		DB:        db,
		Sessions:  sessions,
		Saver:     saver,
		Hub:       s.Hub,
		Log:       log,
		StaticDir: cfg.StaticDir,
		PerPage:   cfg.PerPage,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is cancelled, then drains requests and closes the stores.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.Hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.cfg.Port).Info("server starting")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.close()
		return pkgerrors.Wrap(err, "server run error")
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	stopHub()
	err := s.http.Shutdown(shutdownCtx)
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.WithError(err).Warn("listener stopped with error")
	}
	s.close()
	return err
}

func (s *Server) close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.log.WithError(err).Warn("close redis")
		}
	}
	if err := s.DB.Close(); err != nil {
		s.log.WithError(err).Warn("close database")
	}
}
