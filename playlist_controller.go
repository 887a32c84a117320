package main

import (
	"github.com/gin-gonic/gin"
)

func (a *App) listPlaylists(c *gin.Context) {
	ps, err := a.store.Playlists()
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ps)
}

func (a *App) createPlaylist(c *gin.Context) {
	var request struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	p, err := a.store.CreatePlaylist(request.Name)
	if err != nil {
		badRequest(c, err)
		return
	}
	ok(c, p)
}

func (a *App) renamePlaylist(c *gin.Context) {
	var request struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.store.RenamePlaylist(c.Param("id"), request.Name); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (a *App) deletePlaylist(c *gin.Context) {
	if err := a.store.DeletePlaylist(c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (a *App) playlistItems(c *gin.Context) {
	items, err := a.store.PlaylistItems(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, items)
}

func (a *App) addPlaylistItem(c *gin.Context) {
	var request struct {
		MusicID string `json:"musicId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.store.AddToPlaylist(c.Param("id"), request.MusicID); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (a *App) removePlaylistItem(c *gin.Context) {
	if err := a.store.RemoveFromPlaylist(c.Param("id"), c.Param("musicId")); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (a *App) movePlaylistItem(c *gin.Context) {
	var request struct {
		From *int `json:"from" binding:"required"`
		To   *int `json:"to" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, err)
		return
	}
	if err := a.store.MovePlaylistItem(c.Param("id"), *request.From, *request.To); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
