package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/prydesocial/go-pryde/env"
	"github.com/prydesocial/go-pryde/publicapi"
	"github.com/prydesocial/go-pryde/service/drafts"
	"github.com/prydesocial/go-pryde/service/logger"
	"github.com/prydesocial/go-pryde/service/memstore"
	"github.com/prydesocial/go-pryde/service/persist"
	"github.com/prydesocial/go-pryde/service/realtime"
	"github.com/prydesocial/go-pryde/service/redis"
	"github.com/prydesocial/go-pryde/service/rest"
	sentryutil "github.com/prydesocial/go-pryde/service/sentry"
	"github.com/prydesocial/go-pryde/service/socket"
	"github.com/prydesocial/go-pryde/service/store"
	"github.com/prydesocial/go-pryde/service/verify"
	"github.com/prydesocial/go-pryde/util"
)

const numConcurrentStreams = 3

func main() {
	setDefaults()
	initSentry()
	initLogger()

	router := gin.Default()

	ctx := context.Background()

	entityStore := store.New()
	apiClient := rest.NewClient(env.GetString("PRYDE_API_URL"), env.GetString("PRYDE_AUTH_TOKEN"))

	verifier := verify.New(
		env.GetBool("COMMENT_VERIFY_ENABLED") || env.GetString("ENV") == "local",
		env.GetBool("COMMENT_VERIFY_BLOCKING"),
		apiClient,
	)

	pipeline := realtime.New(ctx, entityStore, verifier,
		time.Duration(env.GetInt("BATCH_DELAY_MS"))*time.Millisecond,
		time.Duration(env.GetInt("BATCH_MAX_DELAY_MS"))*time.Millisecond,
	)
	defer pipeline.Destroy()

	api := publicapi.New(apiClient, entityStore, drafts.New(newDraftsCache()), persist.DBID(env.GetString("PRYDE_USER_ID")))

	seen := socket.NewSeenSet()
	clients := make([]*socket.Client, numConcurrentStreams)
	for i := range clients {
		clients[i] = socket.NewClient(
			env.GetString("PRYDE_SOCKET_URL")+"?token="+env.GetString("PRYDE_AUTH_TOKEN"),
			env.GetString("PRYDE_SOCKET_TOPIC"),
			seen,
		)
	}

	go func() {
		go clients[0].Run(ctx)

		// stagger the redundant streams so their reconnect windows don't line up
		for i := 1; i < numConcurrentStreams; i++ {
			time.Sleep(2 * time.Minute)
			go clients[i].Run(ctx)
		}
	}()

	bridge := socket.NewBridge(func() socket.Transport {
		for _, c := range clients {
			if c.Connected() {
				return c
			}
		}
		return nil
	})

	bridge.WaitForTransport(
		func(t socket.Transport) {
			pipeline.Attach(t)
			logger.For(ctx).Info("comment event pipeline attached to stream")
		},
		func() {
			err := fmt.Errorf("no stream connection after retry budget; events will be missed")
			logger.For(ctx).Error(err)
			sentryutil.ReportError(ctx, err)
		},
	)

	// Health endpoint
	router.GET("/health", util.HealthCheckHandler())

	// Local dev console endpoints, backed by the same store the pipeline writes to.
	if env.GetString("ENV") == "local" {
		router.GET("/snapshot", func(c *gin.Context) {
			byID, byPost, byParent := entityStore.Snapshot()
			c.JSON(http.StatusOK, gin.H{
				"comments":          byID,
				"comments_by_post":  byPost,
				"replies_by_parent": byParent,
			})
		})

		router.GET("/posts/:postID/comments", func(c *gin.Context) {
			comments, err := api.Comment.LoadComments(c, persist.DBID(c.Param("postID")))
			if err != nil {
				util.ErrResponse(c, http.StatusInternalServerError, err)
				return
			}
			c.JSON(http.StatusOK, comments)
		})

		router.POST("/posts/:postID/comments", func(c *gin.Context) {
			var input struct {
				Content string `json:"content"`
				GifURL  string `json:"gif_url"`
			}
			if err := c.ShouldBindJSON(&input); err != nil {
				util.ErrResponse(c, http.StatusBadRequest, err)
				return
			}
			created, err := api.Comment.SubmitComment(c, persist.DBID(c.Param("postID")), input.Content, input.GifURL)
			if err != nil {
				util.ErrResponse(c, http.StatusInternalServerError, err)
				return
			}
			c.JSON(http.StatusOK, created)
		})
	}

	if err := router.Run(":3000"); err != nil {
		err = fmt.Errorf("error running router: %w", err)
		logger.For(ctx).Error(err)
		sentryutil.ReportError(ctx, err)
		panic(err)
	}
}

// newDraftsCache prefers redis so drafts survive restarts; without a configured
// redis it degrades to process-local memory.
func newDraftsCache() memstore.Cache {
	if env.GetString("REDIS_URL") != "" {
		return redis.NewCache(redis.DraftsCache)
	}
	logger.For(nil).Info("REDIS_URL not set, using in-memory draft storage")
	return memstore.NewInMemoryCache()
}

func setDefaults() {
	viper.SetDefault("ENV", "local")
	viper.SetDefault("PRYDE_API_URL", "http://localhost:4000/api")
	viper.SetDefault("PRYDE_SOCKET_URL", "ws://localhost:4000/socket/websocket")
	viper.SetDefault("PRYDE_SOCKET_TOPIC", "comments:*")
	viper.SetDefault("PRYDE_AUTH_TOKEN", "")
	viper.SetDefault("PRYDE_USER_ID", "")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_PASS", "")
	viper.SetDefault("BATCH_DELAY_MS", 100)
	viper.SetDefault("BATCH_MAX_DELAY_MS", 0)
	viper.SetDefault("COMMENT_VERIFY_ENABLED", false)
	viper.SetDefault("COMMENT_VERIFY_BLOCKING", false)
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("SENTRY_TRACES_SAMPLE_RATE", 0.2)
	viper.SetDefault("VERSION", "")

	viper.AutomaticEnv()
}

func initLogger() {
	logger.SetLoggerOptions(func(l *logrus.Logger) {
		l.SetReportCaller(true)

		if env.GetString("ENV") != "local" {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
	})
}

func initSentry() {
	if env.GetString("ENV") == "local" {
		logger.For(nil).Info("skipping sentry init")
		return
	}

	logger.For(nil).Info("initializing sentry...")

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              env.GetString("SENTRY_DSN"),
		Environment:      env.GetString("ENV"),
		TracesSampleRate: env.GetFloat64("SENTRY_TRACES_SAMPLE_RATE"),
		Release:          env.GetString("VERSION"),
		AttachStacktrace: true,
	})

	if err != nil {
		logger.For(nil).Fatalf("failed to start sentry: %s", err)
	}
}
