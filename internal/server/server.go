// Package server exposes a client.Client over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/offchain/internal/client"
)

// maxRequestSize caps inbound envelopes.
const maxRequestSize = 1 << 20

// Processor handles one inbound command request.
type Processor interface {
	Process(ctx context.Context, requestID, senderAddress string, body []byte) client.Reply
}

// Server is the off-chain command endpoint.
type Server struct {
	processor Processor
	router    *gin.Engine
	logger    *slog.Logger
}

// New creates a server routing POST /v2/command to p.
func New(p Processor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		processor: p,
		router:    router,
		logger:    logger,
	}
	router.Use(s.logRequests)
	router.POST(client.CommandPath, s.handleCommand)
	router.GET("/healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleCommand(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestSize))
	if err != nil {
		// An unreadable body is answered as a malformed envelope.
		s.logger.Warn("read request body", "error", err)
		body = nil
	}

	reply := s.processor.Process(c.Request.Context(),
		c.GetHeader(client.HeaderRequestID),
		c.GetHeader(client.HeaderSenderAddress),
		body,
	)
	c.Data(reply.Status, client.ContentType, reply.Body)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"request_id", c.GetHeader(client.HeaderRequestID),
		"duration", time.Since(start),
	)
}
