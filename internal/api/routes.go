// Package api serves the HTTP side of the game: health, session lookup and
// results.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kiliankoe/quipdash/internal/config"
	"github.com/kiliankoe/quipdash/internal/game"
	"github.com/rs/zerolog/log"
)

// Register mounts the routes on r.
func Register(r *gin.Engine, rm *game.RoomManager, cfg config.Config) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC(), "sessions": rm.Count()})
	})

	r.GET("/api/session/active", func(c *gin.Context) {
		if code, sess := rm.Active(); sess != nil {
			c.JSON(http.StatusOK, gin.H{"sessionCode": code})
			return
		}
		c.Status(http.StatusNotFound)
	})

	create := []gin.HandlerFunc{}
	if cfg.HostAuthEnabled() {
		create = append(create, gin.BasicAuth(gin.Accounts{cfg.HostUser: cfg.HostPass}))
	}
	create = append(create, func(c *gin.Context) {
		hostToken := uuid.NewString()
		code := rm.CreateSession(hostToken)
		log.Info().Str("code", code).Msg("session created over http")
		c.JSON(http.StatusOK, gin.H{"sessionCode": code, "hostToken": hostToken})
	})
	r.POST("/api/sessions", create...)

	sessions := r.Group("/api/sessions/:code")
	sessions.GET("", func(c *gin.Context) {
		sess, ok := lookup(c, rm)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, sess.Summary())
	})
	sessions.GET("/players", func(c *gin.Context) {
		sess, ok := lookup(c, rm)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"players": sess.Players()})
	})
	sessions.GET("/results", func(c *gin.Context) {
		sess, ok := lookup(c, rm)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, sess.Results())
	})
}

func lookup(c *gin.Context, rm *game.RoomManager) (*game.Session, bool) {
	sess, err := rm.Get(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return nil, false
	}
	return sess, true
}
