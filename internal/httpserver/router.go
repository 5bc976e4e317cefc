package httpserver

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"projectstream/internal/handler"
	"projectstream/pkg/metrics"
	"projectstream/pkg/mq"
)

func NewRouter(
	milestoneHandler *handler.MilestoneHandler,
	streamHandler *handler.StreamHandler,
	subscriptionHandler *handler.SubscriptionHandler,
	logger *zap.Logger,
	db *pgxpool.Pool,
	consumers []*mq.Consumer,
) *gin.Engine {
	r := gin.Default()

	// Request log middleware
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
		metrics.RecordHTTPRequestDuration(c.Request.Method, c.FullPath(),
			strconv.Itoa(c.Writer.Status()), latency)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		for _, consumer := range consumers {
			if consumer != nil && !consumer.IsConnected() {
				c.JSON(500, gin.H{"status": "mq_not_ready"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Projects
	r.POST("/projects", milestoneHandler.CreateProject)
	r.POST("/projects/:id/transition", milestoneHandler.TransitionProject)
	r.POST("/projects/:id/milestones", milestoneHandler.Create)
	r.GET("/projects/:id/timeline", milestoneHandler.Timeline)
	r.GET("/projects/:id/critical-path", milestoneHandler.CriticalPath)

	// Milestones
	r.GET("/milestones/:id", milestoneHandler.Get)
	r.POST("/milestones/:id/start", milestoneHandler.Start)
	r.POST("/milestones/:id/complete", milestoneHandler.Complete)
	r.PATCH("/milestones/:id/progress", milestoneHandler.UpdateProgress)
	r.POST("/milestones/:id/transition", milestoneHandler.Transition)
	r.POST("/milestones/:id/dependencies", milestoneHandler.AddDependency)
	r.GET("/milestones/:id/comments", milestoneHandler.ListComments)
	r.POST("/milestones/:id/comments", milestoneHandler.AddComment)
	r.PATCH("/comments/:id", milestoneHandler.EditComment)

	// Streams and events
	r.POST("/events", streamHandler.AddEvent)
	r.GET("/streams/:id", streamHandler.Get)
	r.GET("/streams/:id/events", streamHandler.ListEvents)
	r.POST("/streams/:id/recompute", streamHandler.RecomputeCounters)
	r.GET("/events/search", streamHandler.Search)
	r.GET("/feed", streamHandler.Feed)

	// Subscriptions
	r.POST("/subscriptions", subscriptionHandler.Subscribe)
	r.DELETE("/subscriptions", subscriptionHandler.Unsubscribe)
	r.POST("/subscriptions/read", subscriptionHandler.MarkAsRead)
	r.GET("/subscriptions", subscriptionHandler.List)
	r.GET("/dashboard", subscriptionHandler.Dashboard)

	return r
}
