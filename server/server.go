// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server provides the HTTP control surface of the scanner.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aamcrae/postcard/feeder"
	"github.com/aamcrae/postcard/store"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const usage = "Use routes /last_postcard or /last_postcard_timestamp"

// Scanner is the part of the feeder the HTTP API drives.
type Scanner interface {
	Accept()
	Reject()
	Pending() (accepted, rejected bool)
	Status() feeder.Status
	Position() feeder.Position
}

// Images provides the most recently captured postcard.
type Images interface {
	Last() ([]byte, time.Time, error)
	Timestamp() (time.Time, error)
}

// History provides recent scanner events.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.Record, error)
}

// Server serves the last postcard and accepts decisions for the card
// awaiting one.
type Server struct {
	addr      string
	scanner   Scanner
	images    Images
	history   History
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	position  atomic.Int32
	changed   atomic.Int64
}

// NewServer creates a server. history may be nil.
// The scanner's position is read once here, so the server must be
// created before the feeder runs; later changes arrive through Observe.
func NewServer(addr string, scanner Scanner, images Images, history History) *Server {
	if addr == "" {
		addr = "0.0.0.0:8000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		scanner:   scanner,
		images:    images,
		history:   history,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if scanner != nil {
		s.position.Store(int32(scanner.Position()))
	}
	return s
}

// Observe records a feeder position change for the status route.
// It is intended to be called from the feeder's listener.
func (s *Server) Observe(ev feeder.Event) {
	s.position.Store(int32(ev.To))
	s.changed.Store(ev.Time.UnixNano())
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), allowAll())

	r.GET("/", s.handleRoot)
	r.GET("/last_postcard", s.handleLastPostcard)
	r.GET("/last_postcard_timestamp", s.handleTimestamp)
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		r.Handle(m, "/accept_postcard", s.handleAccept)
		r.Handle(m, "/reject_postcard", s.handleReject)
	}
	r.GET("/api/status", s.handleStatus)
	r.GET("/api/history", s.handleHistory)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()
	log.Printf("Starting server on %s", listener.Addr())
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, usage)
}

func (s *Server) handleLastPostcard(c *gin.Context) {
	b, _, err := s.images.Last()
	if err != nil {
		s.imageError(c, err)
		return
	}
	c.JSON(http.StatusOK, base64.StdEncoding.EncodeToString(b))
}

func (s *Server) handleTimestamp(c *gin.Context) {
	ts, err := s.images.Timestamp()
	if err != nil {
		s.imageError(c, err)
		return
	}
	c.JSON(http.StatusOK, epoch(ts))
}

func (s *Server) imageError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNoImage) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	log.Printf("server: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
}

func (s *Server) handleAccept(c *gin.Context) {
	s.scanner.Accept()
	log.Printf("Postcard accepted")
	c.JSON(http.StatusOK, true)
}

func (s *Server) handleReject(c *gin.Context) {
	s.scanner.Reject()
	log.Printf("Postcard rejected")
	c.JSON(http.StatusOK, true)
}

func (s *Server) handleStatus(c *gin.Context) {
	accepted, rejected := s.scanner.Pending()
	body := gin.H{
		"status":   s.scanner.Status().String(),
		"position": feeder.Position(s.position.Load()).String(),
		"accepted": accepted,
		"rejected": rejected,
		"uptime":   time.Since(s.startTime).String(),
	}
	if ns := s.changed.Load(); ns != 0 {
		body["since"] = epoch(time.Unix(0, ns))
	}
	if ts, err := s.images.Timestamp(); err == nil {
		body["last_postcard"] = epoch(ts)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not enabled"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	recs, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Printf("server: history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"events": recs, "count": len(recs)})
}

// allowAll accepts requests from any origin, echoing it back so that
// credentialed requests work.
func allowAll() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	})
}

// epoch returns t as fractional seconds since the Unix epoch.
func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
