package web

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/federation"
	"github.com/nocturnefm/nocturne/tasks"
	"github.com/nocturnefm/nocturne/util"
	"golang.org/x/time/rate"
)

// Server carries the dependencies every handler needs.
type Server struct {
	Conf       *util.AppConfig
	DB         *db.DB
	Fed        *federation.Client
	Dispatcher *federation.Dispatcher
	Runner     *tasks.Runner
	Log        *log.Logger
}

// Router assembles the gin engine: RSS and management always, the
// federation surface only when enabled. Disabled federation routes
// answer 405, not 404, so peers can tell policy from absence.
func (s *Server) Router() *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	// RSS Feed
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		rss, err := s.GetRSS(c.Query("library"))
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	// Stricter rate limit for federation endpoints: 5 req/sec per IP
	fedLimiter := NewRateLimiter(rate.Limit(5), 10)
	// Max 1MB request body size for activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	if s.Conf.Conf.WithFederation {
		g.GET("/.well-known/webfinger", s.HandleWebfinger)

		fed := g.Group("/federation", RateLimitMiddleware(fedLimiter))
		fed.GET("/actors/:name", s.HandleActor)
		fed.POST("/actors/:name/inbox", maxBodySize, s.HandleInbox)
		fed.POST("/inbox", maxBodySize, s.HandleInbox)
		fed.GET("/libraries/:uuid", s.HandleLibrary)
	} else {
		disabled := func(c *gin.Context) {
			c.Status(http.StatusMethodNotAllowed)
		}
		g.GET("/.well-known/webfinger", disabled)
		g.GET("/federation/actors/:name", disabled)
		g.POST("/federation/actors/:name/inbox", disabled)
		g.POST("/federation/inbox", disabled)
		g.GET("/federation/libraries/:uuid", disabled)
	}

	manage := g.Group("/api/manage/federation", AdminTokenMiddleware(s.Conf.Conf.AdminToken))
	manage.GET("/follows", s.HandleListFollows)
	manage.PATCH("/follows/:id", s.HandleDecideFollow)
	manage.POST("/follows", s.HandleFollowLibrary)
	manage.POST("/scan", s.HandleScanAccount)
	manage.GET("/libraries", s.HandleListLibraries)
	manage.GET("/libraries/:id", s.HandleLibraryDetail)
	manage.PATCH("/libraries/:id", s.HandlePatchLibrary)
	manage.POST("/libraries/:id/scan", s.HandleScanLibrary)
	manage.GET("/tracks", s.HandleListTracks)
	manage.POST("/tracks/import", s.HandleImportTracks)
	manage.GET("/tasks/:id", s.HandleTaskStatus)

	return g
}

// Run starts the HTTP server and blocks.
func (s *Server) Run() error {
	s.Log.Info("starting http server", "host", s.Conf.Conf.Host, "port", s.Conf.Conf.HttpPort)
	return s.Router().Run(fmt.Sprintf("%s:%d", s.Conf.Conf.Host, s.Conf.Conf.HttpPort))
}
