package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"oxenqueue/internal/db"
	"oxenqueue/queue"
)

func main() {
	log.Println("API server starting...")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	jobType := os.Getenv("OXEN_QUEUE_JOB_TYPE")
	if jobType == "" {
		jobType = "default"
	}

	database, err := db.Connect(dbURL, 5)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	cfg := queue.DefaultConfig()
	cfg.DatabaseURL = dbURL
	cfg.Table = os.Getenv("OXEN_QUEUE_TABLE")
	if extra := os.Getenv("OXEN_QUEUE_EXTRA_FIELDS"); extra != "" {
		cfg.ExtraFields = strings.Split(extra, ",")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	controller, err := queue.New(ctx, database, jobType, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to build queue controller: %v", err)
	}

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS - allow all origins, matching the introspection surface's
	// intended use as an internal/ops dashboard rather than a public API.
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return true, nil
		},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/debug/queues", func(c echo.Context) error {
		return c.JSON(http.StatusOK, controller.Debug())
	})

	e.POST("/enqueue", func(c echo.Context) error {
		var req enqueueRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if req.Body == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "body is required"})
		}

		in := queue.EnqueueInput{
			Body:  req.Body,
			Extra: req.Extra,
		}
		if req.Priority != 0 {
			priority := req.Priority
			in.Priority = &priority
		}
		if req.UniqueKey != "" {
			in.UniqueKey = &req.UniqueKey
		}
		if req.DelaySeconds > 0 {
			startAt := time.Now().Add(time.Duration(req.DelaySeconds) * time.Second)
			in.StartAt = &startAt
		}

		result, err := controller.Enqueue(c.Request().Context(), in)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusCreated, result)
	})

	e.GET("/debug/routes", func(c echo.Context) error {
		routes := []string{}
		for _, route := range e.Routes() {
			routes = append(routes, route.Method+" "+route.Path)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"routes": routes})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API server started on port %s (job_type=%s)", port, jobType)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = e.Shutdown(shutdownCtx)
}

// enqueueRequest is the wire shape accepted by POST /enqueue.
type enqueueRequest struct {
	Body         string         `json:"body"`
	Priority     int64          `json:"priority"`
	UniqueKey    string         `json:"unique_key"`
	DelaySeconds int            `json:"delay_seconds"`
	Extra        map[string]any `json:"extra"`
}
