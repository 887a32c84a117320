package main

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/ai"
	"github.com/bihua-university/melodex/internal/auth"
	"github.com/bihua-university/melodex/internal/base"
	"github.com/bihua-university/melodex/internal/enrich"
	"github.com/bihua-university/melodex/internal/library"
	"github.com/bihua-university/melodex/internal/settings"
)

// App holds everything the handlers share.
type App struct {
	cfg      base.Configuration
	log      *zap.Logger
	store    *library.Store
	settings *settings.Settings
	svc      *enrich.Service
	worker   *enrich.Worker

	mu     sync.Mutex
	client *ai.Client
}

func NewApp(cfg base.Configuration, store *library.Store, log *zap.Logger) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		settings: settings.New(store, cfg.AIOptions(), cfg.AIKey),
	}
	a.svc = enrich.NewService(store, nil, "", cfg.AITemperature, log.Named("enrich"))
	a.worker = enrich.NewWorker(a.svc, log.Named("worker"))
	if err := a.reloadAI(); err != nil {
		return nil, err
	}
	return a, nil
}

// reloadAI rebuilds the AI client from the stored settings. The fallback
// cache starts empty for the new client.
func (a *App) reloadAI() error {
	opts, key, err := a.settings.AIOptions()
	if err != nil {
		return err
	}
	client, err := ai.NewClient(opts, a.log.Named("ai"))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	a.svc.SetClient(client, key)
	a.log.Info("ai client ready",
		zap.String("provider", client.Provider().Name()),
		zap.String("model", client.Model()),
		zap.Bool("has_key", key != ""))
	return nil
}

func (a *App) aiClient() *ai.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}

func (a *App) Router() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery(), a.requestLogger(), Cors())

	g.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	api := g.Group("/", auth.Bearer(a.cfg.APIToken))
	api.GET("/music", a.listMusic)
	api.POST("/music/scan", a.scanMusic)
	api.GET("/music/:id", a.getMusic)
	api.DELETE("/music/:id", a.deleteMusic)
	api.POST("/music/:id/enrich", a.enrichMusic)
	api.GET("/music/:id/labels", a.musicLabels)
	api.POST("/enrich/pending", a.enrichPending)
	api.GET("/labels/:category/:name", a.musicByLabel)
	api.GET("/recommend/daily", a.dailyRecommendation)

	api.GET("/playlists", a.listPlaylists)
	api.POST("/playlists", a.createPlaylist)
	api.PUT("/playlists/:id", a.renamePlaylist)
	api.DELETE("/playlists/:id", a.deletePlaylist)
	api.GET("/playlists/:id/items", a.playlistItems)
	api.POST("/playlists/:id/items", a.addPlaylistItem)
	api.DELETE("/playlists/:id/items/:musicId", a.removePlaylistItem)
	api.POST("/playlists/:id/move", a.movePlaylistItem)

	api.POST("/history", a.recordPlay)
	api.GET("/history/recent", a.recentHistory)
	api.GET("/history/top", a.topPlayed)
	api.GET("/history/listening", a.listening)

	api.GET("/settings", a.getSettings)
	api.PUT("/settings", a.updateSettings)
	api.DELETE("/ai/cache", a.clearAICache)

	api.GET("/events", a.events)
	return g
}

func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "authorization,content-type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (a *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		a.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": "20000", "data": data})
}

// fail maps domain errors onto HTTP statuses. AI failures are shown with
// their fixed listener facing message.
func fail(c *gin.Context, err error) {
	var aerr *ai.Error
	switch {
	case errors.As(err, &aerr):
		status := http.StatusBadGateway
		if aerr.Kind == ai.KindRateLimit {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": aerr.Message(), "kind": aerr.Kind.String()})
		return
	case errors.Is(err, library.ErrNotFound), errors.Is(err, enrich.ErrEmptyLibrary):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, library.ErrInvalidPosition), errors.Is(err, settings.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, enrich.ErrNoClient):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, enrich.ErrBadReply):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": ai.KindParse.String()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
