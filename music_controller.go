package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bihua-university/melodex/internal/label"
	"github.com/bihua-university/melodex/internal/library"
)

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}

func (a *App) listMusic(c *gin.Context) {
	page, pageSize := queryInt(c, "page", 1), queryInt(c, "pageSize", 20)

	var (
		list  []library.Music
		total int64
		err   error
	)
	if kw := c.Query("keyword"); kw != "" {
		list, total, err = a.store.SearchMusic(kw, page, pageSize)
	} else {
		list, total, err = a.store.ListMusic(page, pageSize)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"list": list, "total": total})
}

func (a *App) getMusic(c *gin.Context) {
	m, err := a.store.GetMusicDetail(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, m)
}

func (a *App) deleteMusic(c *gin.Context) {
	if err := a.store.DeleteMusic(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	a.svc.ForgetDaily()
	ok(c, nil)
}

func (a *App) scanMusic(c *gin.Context) {
	var request struct {
		Dir    string `json:"dir"`
		Enrich bool   `json:"enrich"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			badRequest(c, err)
			return
		}
	}
	if request.Dir == "" {
		request.Dir = a.cfg.LibraryDir
	}
	if request.Dir == "" {
		badRequest(c, errors.New("no music dir configured"))
		return
	}

	res, err := a.store.Scan(c.Request.Context(), request.Dir)
	if err != nil {
		fail(c, err)
		return
	}
	a.svc.ForgetDaily()

	queued := 0
	if request.Enrich {
		queued, err = a.enqueuePending()
		if err != nil {
			fail(c, err)
			return
		}
	}
	ok(c, gin.H{"scan": res, "queued": queued})
}

func (a *App) enqueuePending() (int, error) {
	pending, err := a.store.PendingExtra(0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range pending {
		if a.worker.Enqueue(m.ID) {
			n++
		}
	}
	return n, nil
}

// enrichMusic queues the track, or runs it inline with ?sync=true.
func (a *App) enrichMusic(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.store.GetMusic(id); err != nil {
		fail(c, err)
		return
	}

	if c.Query("sync") == "true" {
		res, err := a.svc.Enrich(c.Request.Context(), id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, res)
		return
	}

	queued := a.worker.Enqueue(id)
	c.JSON(http.StatusAccepted, gin.H{"code": "20000", "data": gin.H{"queued": queued, "pending": a.worker.Pending()}})
}

func (a *App) enrichPending(c *gin.Context) {
	n, err := a.enqueuePending()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"code": "20000", "data": gin.H{"queued": n, "pending": a.worker.Pending()}})
}

func (a *App) musicLabels(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.store.GetMusic(id); err != nil {
		fail(c, err)
		return
	}
	labels, err := a.store.Labels(id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, labels)
}

func (a *App) musicByLabel(c *gin.Context) {
	category, found := label.ParseCategory(c.Param("category"))
	if !found {
		badRequest(c, errors.New("unknown label category "+strconv.Quote(c.Param("category"))))
		return
	}
	name := label.Match(category, c.Param("name"))

	list, total, err := a.store.MusicByLabel(category, name, queryInt(c, "page", 1), queryInt(c, "pageSize", 20))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"category": category, "label": name, "list": list, "total": total})
}

func (a *App) dailyRecommendation(c *gin.Context) {
	day := time.Now()
	if v := c.Query("day"); v != "" {
		t, err := time.ParseInLocation(library.DayLayout, v, time.Local)
		if err != nil {
			badRequest(c, err)
			return
		}
		day = t
	}
	d, err := a.svc.DailyRecommendation(c.Request.Context(), day)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}
