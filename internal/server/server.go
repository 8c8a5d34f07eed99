// Package server exposes conversions over HTTP. Jobs are created from an
// uploaded file, polled or cancelled by ID, and their events streamed over a
// WebSocket.
package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/zudsniper/audio2text/internal/media"
	"github.com/zudsniper/audio2text/internal/pipeline"
	"github.com/zudsniper/audio2text/internal/transcribe"
)

type Options struct {
	DefaultLanguage string
	UploadDir       string        // where uploads wait for their job; system temp when empty
	MaxUpload       int64         // bytes; 0 means 512 MiB
	Retention       time.Duration // how long a finished job stays queryable; 0 means 1h
}

type jobEntry struct {
	job     *pipeline.Job
	events  *hub
	created time.Time

	mu       sync.Mutex
	text     string
	errMsg   string
	finished time.Time
}

type Server struct {
	ctrl     *pipeline.Controller
	opts     Options
	log      hclog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

func New(ctrl *pipeline.Controller, opts Options, log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "fr-FR"
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 512 << 20
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctrl: ctrl,
		opts: opts,
		log:  log.Named("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
	}
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = 32 << 20

	r.GET("/healthz", s.health)
	v1 := r.Group("/v1")
	v1.POST("/jobs", s.createJob)
	v1.GET("/jobs/:id", s.getJob)
	v1.DELETE("/jobs/:id", s.cancelJob)
	v1.GET("/jobs/:id/events", s.streamEvents)
	return r
}

// ListenAndServe serves until ctx is cancelled, then cancels running jobs
// and waits for them.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)

	select {
	case err := <-errCh:
		s.Close()
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels every job and waits for their controllers to return.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status(), "took", time.Since(start))
	}
}

// sweep drops jobs that finished more than Retention ago.
func (s *Server) sweep() {
	cutoff := time.Now().Add(-s.opts.Retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.jobs {
		e.mu.Lock()
		expired := !e.finished.IsZero() && e.finished.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			s.log.Debug("job evicted", "job", id)
		}
	}
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

func (s *Server) health(c *gin.Context) {
	s.sweep()
	s.mu.RLock()
	n := len(s.jobs)
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": n})
}

func (s *Server) createJob(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUpload)
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	language := strings.TrimSpace(c.PostForm("language"))
	if language == "" {
		language = s.opts.DefaultLanguage
	}
	if !transcribe.ValidLanguage(language) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid language tag " + language})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !media.Supported(ext) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": media.ErrUnsupportedFormat.Error() + " " + ext})
		return
	}

	dir := s.opts.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "a2t-upload-*"+ext)
	if err != nil {
		s.log.Error("create upload file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot store upload"})
		return
	}
	path := f.Name()
	f.Close()
	if err := c.SaveUploadedFile(file, path); err != nil {
		media.Remove(s.log, path)
		s.log.Error("save upload", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot store upload"})
		return
	}

	s.sweep()
	entry := &jobEntry{job: s.ctrl.NewJob(path, language), events: newHub(), created: time.Now()}
	s.mu.Lock()
	s.jobs[entry.job.ID] = entry
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(entry, file.Filename)
	c.JSON(http.StatusAccepted, s.view(entry))
}

func (s *Server) run(e *jobEntry, name string) {
	defer s.wg.Done()
	defer media.Remove(s.log, e.job.SourcePath)
	// The hub is closed by the terminal event; this covers a controller panic.
	defer e.events.close()

	log := s.log.With("job", e.job.ID, "upload", name)
	log.Info("job started")
	tr, err := s.ctrl.WithSink(e.events).Run(s.ctx, e.job)

	e.mu.Lock()
	if tr != nil {
		e.text = tr.Text
	}
	if err != nil {
		e.errMsg = err.Error()
	}
	e.finished = time.Now()
	e.mu.Unlock()
	log.Info("job ended", "state", e.job.State())
}

func (s *Server) lookup(c *gin.Context) (*jobEntry, bool) {
	s.sweep()
	s.mu.RLock()
	e, ok := s.jobs[c.Param("id")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	}
	return e, ok
}

func (s *Server) getJob(c *gin.Context) {
	if e, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, s.view(e))
	}
}

func (s *Server) cancelJob(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	v := s.view(e)
	if !v.Finished.IsZero() {
		// Deleting a finished job removes it.
		s.forget(e.job.ID)
		s.log.Info("job removed", "job", e.job.ID)
		c.JSON(http.StatusOK, v)
		return
	}
	e.job.Cancel()
	s.log.Info("cancel requested", "job", e.job.ID)
	c.JSON(http.StatusAccepted, s.view(e))
}

func (s *Server) streamEvents(c *gin.Context) {
	e, ok := s.lookup(c)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	next := 0
	for {
		events, done, wake := e.events.since(next)
		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
		next += len(events)
		if done {
			break
		}
		select {
		case <-wake:
		case <-gone:
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, e.job.State().String())
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

type jobView struct {
	ID       string    `json:"id"`
	State    string    `json:"state"`
	Language string    `json:"language"`
	Done     int       `json:"done"`
	Total    int       `json:"total"`
	Text     string    `json:"text,omitempty"`
	Error    string    `json:"error,omitempty"`
	Created  time.Time `json:"created"`
	Finished time.Time `json:"finished,omitzero"`
}

func (s *Server) view(e *jobEntry) jobView {
	done, total := e.events.progress()
	e.mu.Lock()
	defer e.mu.Unlock()
	return jobView{
		ID:       e.job.ID,
		State:    e.job.State().String(),
		Language: e.job.Language,
		Done:     done,
		Total:    total,
		Text:     e.text,
		Error:    e.errMsg,
		Created:  e.created,
		Finished: e.finished,
	}
}
