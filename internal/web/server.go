package web

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"file-compressor-go/internal/config"
	"file-compressor-go/internal/engine"
	"file-compressor-go/internal/monitor"
	"file-compressor-go/internal/naming"
	"file-compressor-go/internal/results"
	"file-compressor-go/internal/scheduler"
	"file-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

// Server exposes the compression core over HTTP. It is thin glue: request
// validation, upload plumbing and serialization around the scheduler.
type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	mon        monitor.Monitor
	runner     engine.Runner
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentStats   *statistics.Statistics
}

// APIResponse is the generic envelope for API replies.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// FolderOperationResponse lists one result entry per processed file.
type FolderOperationResponse struct {
	Files []results.FileResult `json:"files"`
}

// WSMessage is a websocket broadcast frame.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a Server wired to the given config and monitor.
func NewServer(cfg *config.Config, log *logrus.Logger, mon monitor.Monitor) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		mon:       mon,
		runner:    &engine.PigzRunner{Binary: cfg.Compression.Binary},
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/resource-usage", s.handleResourceUsage).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/decompress", s.handleDecompress).Methods("POST")
	api.HandleFunc("/process/files", s.handleProcessFiles).Methods("POST")

	// Download and cleanup of the working directory
	s.router.HandleFunc("/download_all", s.handleDownloadAll).Methods("GET")
	s.router.HandleFunc("/cleanup", s.handleCleanup).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Static files
	s.router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir("web/static/"))),
	)

	// Main page
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Start runs the HTTP server on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  0, // uploads may be large and slow
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, "web/templates/index.html")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"statistics": statsData,
		},
	})
}

func (s *Server) handleResourceUsage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.mon.Sample())
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	s.handlePathOperation(w, r, engine.OpCompress)
}

func (s *Server) handleDecompress(w http.ResponseWriter, r *http.Request) {
	s.handlePathOperation(w, r, engine.OpDecompress)
}

// handlePathOperation serves path-based compress/decompress requests.
// Precondition failures (missing path, bad level) are request-level errors;
// per-file failures are reported inline in the result list.
func (s *Server) handlePathOperation(w http.ResponseWriter, r *http.Request, op engine.Operation) {
	inputPath := r.URL.Query().Get("input_path")
	if inputPath == "" {
		s.writeError(w, "input_path is required", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		s.writeError(w, "Input path must be an existing file or directory", http.StatusBadRequest)
		return
	}

	level := s.cfg.Compression.Level
	if raw := r.URL.Query().Get("compression_level"); raw != "" {
		level, err = strconv.Atoi(raw)
		if err != nil || !config.ValidLevel(level) {
			s.writeError(w, "compression_level must be an integer between 1 and 9", http.StatusBadRequest)
			return
		}
	}

	units := s.cfg.Performance.TotalUnits
	if raw := r.URL.Query().Get("threads"); raw != "" {
		units, err = strconv.Atoi(raw)
		if err != nil || units < 1 {
			s.writeError(w, "threads must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	opts := scheduler.Options{BaseLevel: level, TotalUnits: units, Op: op}
	sched, stats := s.beginRun()
	defer s.endRun()

	s.broadcastWSMessage("operation_started", map[string]interface{}{
		"input_path": inputPath,
		"operation":  op.String(),
	})

	var outcomes []engine.Outcome
	if info.IsDir() {
		outcomes, err = sched.Run(r.Context(), inputPath, opts)
	} else {
		var outcome engine.Outcome
		outcome, err = sched.RunFile(r.Context(), inputPath, opts)
		outcomes = []engine.Outcome{outcome}
	}
	if err != nil {
		s.broadcastWSMessage("operation_error", map[string]interface{}{"error": err.Error()})
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats.Finalize()
	merged := results.Merge(outcomes)

	s.broadcastWSMessage("operation_completed", map[string]interface{}{
		"files":      len(merged),
		"statistics": stats.GetSummary(),
	})

	s.writeJSON(w, FolderOperationResponse{Files: merged})
}

// handleProcessFiles accepts multipart uploads, materializes them under the
// working directory with sanitized names, and processes the whole batch.
func (s *Server) handleProcessFiles(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Web.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Web.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, fmt.Sprintf("Invalid multipart request: %v", err), http.StatusBadRequest)
		return
	}

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		s.writeError(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	op := engine.OpCompress
	if r.URL.Query().Get("decompress") == "true" {
		op = engine.OpDecompress
	}

	level := s.cfg.Compression.Level
	if raw := r.URL.Query().Get("compression_level"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || !config.ValidLevel(parsed) {
			s.writeError(w, "compression_level must be an integer between 1 and 9", http.StatusBadRequest)
			return
		}
		level = parsed
	}

	workDir := s.cfg.Web.WorkDir
	if err := os.MkdirAll(workDir, 0755); err != nil {
		s.writeError(w, fmt.Sprintf("Failed to create working directory: %v", err), http.StatusInternalServerError)
		return
	}

	for _, header := range uploads {
		if err := s.saveUpload(header, workDir); err != nil {
			s.writeError(w, fmt.Sprintf("Failed to store upload %q: %v", header.Filename, err), http.StatusInternalServerError)
			return
		}
	}

	opts := scheduler.Options{BaseLevel: level, TotalUnits: s.cfg.Performance.TotalUnits, Op: op}
	sched, stats := s.beginRun()
	defer s.endRun()

	outcomes, err := sched.Run(r.Context(), workDir, opts)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats.Finalize()
	s.writeJSON(w, FolderOperationResponse{Files: results.Merge(outcomes)})
}

// saveUpload writes one uploaded file into dir under a sanitized name.
func (s *Server) saveUpload(header *multipart.FileHeader, dir string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	name := naming.Sanitize(header.Filename)
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// handleDownloadAll streams the working directory as a tar.gz bundle.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	workDir := s.cfg.Web.WorkDir
	if _, err := os.Stat(workDir); err != nil {
		s.writeError(w, "Nothing to download", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="compressed_files.tar.gz"`)

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})

	if err != nil {
		s.log.WithError(err).Error("Failed to stream download bundle")
	}
	if err := tw.Close(); err != nil {
		s.log.WithError(err).Error("Failed to finalize tar stream")
	}
	if err := gz.Close(); err != nil {
		s.log.WithError(err).Error("Failed to finalize gzip stream")
	}
}

// handleCleanup removes everything under the working directory.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	workDir := s.cfg.Web.WorkDir
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeJSON(w, APIResponse{Success: true, Message: "Nothing to clean up"})
			return
		}
		s.writeError(w, fmt.Sprintf("Failed to read working directory: %v", err), http.StatusInternalServerError)
		return
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(workDir, entry.Name())); err != nil {
			s.log.WithError(err).WithField("entry", entry.Name()).Warn("Cleanup failed for entry")
		}
	}

	s.writeJSON(w, APIResponse{Success: true, Message: "Working directory cleaned"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// beginRun builds a fresh scheduler and statistics for one request.
func (s *Server) beginRun() (*scheduler.Scheduler, *statistics.Statistics) {
	stats := statistics.NewStatistics()

	s.operationMutex.Lock()
	s.isRunning = true
	s.currentStats = stats
	s.operationMutex.Unlock()

	engOpts := []engine.Option{
		engine.WithSampler(monitor.NewInstantMonitor(s.log)),
	}
	if s.cfg.Compression.Timeout > 0 {
		engOpts = append(engOpts, engine.WithTimeout(s.cfg.Compression.Timeout))
	}
	if s.cfg.Compression.KeepSource {
		engOpts = append(engOpts, engine.WithKeepSource())
	}
	eng := engine.New(s.runner, s.log, engOpts...)

	return scheduler.New(eng, s.mon, s.log, stats), stats
}

func (s *Server) endRun() {
	s.operationMutex.Lock()
	s.isRunning = false
	s.operationMutex.Unlock()
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn := range s.wsClients {
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
