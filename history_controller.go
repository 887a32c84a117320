package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bihua-university/melodex/internal/library"
	"github.com/bihua-university/melodex/internal/settings"
)

// recordPlay logs a finished (or skipped) play and makes the track current.
func (a *App) recordPlay(c *gin.Context) {
	var request struct {
		MusicID  string    `json:"musicId" binding:"required"`
		Seconds  int64     `json:"seconds" binding:"min=0"`
		PlayedAt time.Time `json:"playedAt"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	if request.PlayedAt.IsZero() {
		request.PlayedAt = time.Now()
	}
	if err := a.store.RecordPlay(request.MusicID, request.Seconds, request.PlayedAt); err != nil {
		fail(c, err)
		return
	}
	if err := a.settings.SetCurrentTrack(request.MusicID); err != nil {
		a.log.Warn("saving current track", zap.Error(err))
	}
	ok(c, nil)
}

func (a *App) recentHistory(c *gin.Context) {
	rows, err := a.store.RecentHistory(queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func (a *App) topPlayed(c *gin.Context) {
	rows, err := a.store.TopPlayed(queryInt(c, "limit", 10))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

func (a *App) listening(c *gin.Context) {
	day := time.Now()
	if v := c.Query("day"); v != "" {
		t, err := time.ParseInLocation(library.DayLayout, v, time.Local)
		if err != nil {
			badRequest(c, err)
			return
		}
		day = t
	}
	rows, total, err := a.store.ListeningOn(day)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"day": day.Format(library.DayLayout), "tracks": rows, "seconds": total})
}

func (a *App) getSettings(c *gin.Context) {
	v, err := a.settings.View()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

func (a *App) updateSettings(c *gin.Context) {
	var patch settings.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.settings.Apply(patch); err != nil {
		fail(c, err)
		return
	}
	if patch.AI != nil {
		if err := a.reloadAI(); err != nil {
			fail(c, err)
			return
		}
	}
	a.getSettings(c)
}

func (a *App) clearAICache(c *gin.Context) {
	client := a.aiClient()
	n := client.CacheLen()
	client.ClearCache()
	ok(c, gin.H{"cleared": n})
}
