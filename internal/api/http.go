package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/victornm/typerace/internal/errors"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *API) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *API) getLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()

	l, err := a.lb.GetLeaderboard(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "api: get leaderboard failed", "error", err)
		c.JSON(errors.Convert(err).HTTPStatusCode(), ErrorResponse{Error: "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, l.Entries)
}

// registerStatic serves the participant, admin and leaderboard pages, and any
// other file of the static directory.
func (a *API) registerStatic(e *gin.Engine) {
	pages := map[string]string{
		"/":            "index.html",
		"/admin":       "admin.html",
		"/leaderboard": "leaderboard.html",
	}

	for route, file := range pages {
		e.StaticFile(route, filepath.Join(a.staticDir, file))
	}

	e.NoRoute(gin.WrapH(http.FileServer(http.Dir(a.staticDir))))
}

// CORS allows every origin, and answers preflight requests.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger logs every HTTP request after it is served.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		slog.InfoContext(c.Request.Context(), "api: http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
