// Package server exposes the mission pipeline over HTTP: report
// analysis, recent audit activity, the active policy summary, and a
// health probe. The policy file is hot-reloadable; a failed reload
// keeps the policy that was already serving.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relieflabs/firebreak/internal/alert"
	"github.com/relieflabs/firebreak/internal/approval"
	"github.com/relieflabs/firebreak/internal/audit"
	"github.com/relieflabs/firebreak/internal/commander"
	"github.com/relieflabs/firebreak/internal/guard"
	"github.com/relieflabs/firebreak/internal/oracle"
	"github.com/relieflabs/firebreak/internal/policy"
	"github.com/relieflabs/firebreak/internal/profile"
	"github.com/relieflabs/firebreak/internal/reasoner"
	"github.com/relieflabs/firebreak/internal/sanitize"
	"github.com/relieflabs/firebreak/internal/subagent"
)

const (
	// maxImageBytes caps situation-image uploads.
	maxImageBytes = 10 << 20
	// maxFormMemory is the in-memory threshold for multipart parsing;
	// larger parts spool to disk.
	maxFormMemory = 4 << 20
	// maxJSONBytes bounds JSON analyze bodies. Reports are capped at
	// 1000 characters, so anything near this limit is garbage.
	maxJSONBytes = 1 << 16
)

// Server wires the commander behind an HTTP API.
type Server struct {
	cfg       Config
	guard     *guard.Guard
	commander *commander.Commander
	store     *audit.Store
	chain     *audit.Chain
	approvals *approval.Store
	alerts    *alert.Dispatcher
	logger    *zap.Logger

	// baseDir pins the dispatch directory for the process lifetime.
	// Hot reload swaps rules, never where artifacts land.
	baseDir string

	mux *http.ServeMux
	srv *http.Server
}

// New builds a Server: loads and compiles the policy, opens the audit
// sinks, and assembles the guard, the sub-agents, and the commander.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pol, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	approvalDir := cfg.ApprovalDir
	if approvalDir == "" {
		approvalDir = approval.DefaultDir()
	}
	approvals, err := approval.NewStore(approvalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval store: %w", err)
	}

	referralDir := cfg.ReferralDir
	if referralDir == "" {
		referralDir = filepath.Join(filepath.Dir(pol.BaseDir), "medical_referrals")
	}

	var orc *oracle.Client
	if cfg.Oracle.Command != "" {
		orc = &oracle.Client{Command: cfg.Oracle.Command, Args: cfg.Oracle.Args}
	}

	var sinks []audit.Recorder
	var chain *audit.Chain
	if cfg.AuditLog != "" {
		chain, err = audit.Open(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, chain)
	}
	var store *audit.Store
	if cfg.AuditDB != "" {
		store, err = audit.OpenStore(cfg.AuditDB)
		if err != nil {
			if chain != nil {
				chain.Close()
			}
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
		sinks = append(sinks, store)
	}
	recorder := audit.Multi(sinks...)

	dispatcher := alert.NewDispatcher(cfg.Alerts)
	g := guard.New(pol, orc, recorder, logger)

	s := &Server{
		cfg:   cfg,
		guard: g,
		commander: &commander.Commander{
			Reasoner: reasoner.Config{
				APIURL: cfg.Reasoner.APIURL,
				APIKey: cfg.Reasoner.APIKey,
				Model:  cfg.Reasoner.Model,
			},
			Guard:          g,
			Logistics:      subagent.NewLogistics(pol.BaseDir, logger),
			Medical:        subagent.NewMedical(referralDir, logger),
			Approvals:      approvals,
			Alerts:         dispatcher,
			Audit:          recorder,
			Logger:         logger,
			MaxReflections: cfg.MaxReflections,
		},
		store:     store,
		chain:     chain,
		approvals: approvals,
		alerts:    dispatcher,
		logger:    logger,
		baseDir:   pol.BaseDir,
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// loadPolicy loads the policy file, overlays the named profile, applies
// the dispatch-dir override, and compiles.
func loadPolicy(cfg Config) (*policy.Policy, error) {
	pc, hash, err := policy.LoadWithHash(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}
	if cfg.Profile != "" {
		prof, err := profile.Load(cfg.Profile)
		if err != nil {
			return nil, err
		}
		pc = profile.Apply(prof, pc)
	}
	if cfg.DispatchDir != "" {
		pc.BaseDir = cfg.DispatchDir
	}
	return pc.Compile(hash)
}

// routes registers the API surface.
func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/audit/recent", s.handleAuditRecent)
	mux.HandleFunc("GET /api/policy", s.handlePolicy)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux = mux
}

// ServeHTTP makes the server usable as a plain handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins serving. Blocks until the context is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Close releases the audit sinks.
func (s *Server) Close() error {
	// Drain in-flight webhook deliveries before the sinks go away.
	s.alerts.Wait()

	var first error
	if s.chain != nil {
		if err := s.chain.Close(); err != nil {
			first = err
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ReloadPolicy reloads the policy file, re-applies the profile, and
// swaps the compiled result into the guard. In-flight missions finish
// under the policy they started with. Any error leaves the active
// policy serving.
func (s *Server) ReloadPolicy() error {
	pol, err := loadPolicy(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	pol, err = pol.WithBaseDir(s.baseDir)
	if err != nil {
		return err
	}
	s.guard.SwapPolicy(pol)
	s.logger.Info("policy reloaded",
		zap.String("version", pol.Version),
		zap.String("hash", pol.Hash),
	)
	return nil
}

// analyzeRequest is the JSON body for POST /api/analyze.
type analyzeRequest struct {
	Report   string `json:"report"`
	Filename string `json:"filename,omitempty"`
}

// handleAnalyze runs one mission. Validation failures are HTTP errors;
// everything the pipeline decides, including blocks and parked
// approvals, comes back as a 200 with the mission result.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, status, err := decodeAnalyze(w, r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	res := s.commander.Run(r.Context(), req)
	writeJSON(w, http.StatusOK, res)
}

// decodeAnalyze accepts a multipart form (report field plus optional
// image file) or a JSON body.
func decodeAnalyze(w http.ResponseWriter, r *http.Request) (commander.Request, int, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return decodeMultipart(w, r)
	}

	var body analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := dec.Decode(&body); err != nil {
		return commander.Request{}, http.StatusBadRequest, errors.New("invalid JSON body")
	}
	if err := validateReport(body.Report); err != nil {
		return commander.Request{}, http.StatusBadRequest, err
	}
	return commander.Request{Report: body.Report, Filename: body.Filename}, 0, nil
}

func decodeMultipart(w http.ResponseWriter, r *http.Request) (commander.Request, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return commander.Request{}, http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return commander.Request{}, http.StatusBadRequest, errors.New("invalid multipart form")
	}

	req := commander.Request{
		Report:   r.FormValue("report"),
		Filename: r.FormValue("filename"),
	}
	if err := validateReport(req.Report); err != nil {
		return commander.Request{}, http.StatusBadRequest, err
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		if header.Size > maxImageBytes {
			return commander.Request{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("image exceeds %d bytes", maxImageBytes)
		}
		data, rerr := io.ReadAll(file)
		if rerr != nil {
			return commander.Request{}, http.StatusBadRequest, errors.New("failed to read image upload")
		}
		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return commander.Request{}, http.StatusBadRequest,
				fmt.Errorf("uploaded file is %s, not an image", mime)
		}
		req.Image = data
		req.ImageMIME = mime
	case errors.Is(err, http.ErrMissingFile):
		// No image attached.
	default:
		return commander.Request{}, http.StatusBadRequest, errors.New("invalid image upload")
	}
	return req, 0, nil
}

// validateReport enforces the submission contract. The sanitizer
// truncates long text for resilience; at the API boundary an oversize
// report is rejected instead so the caller learns about it.
func validateReport(report string) error {
	if strings.TrimSpace(report) == "" {
		return errors.New("report is required")
	}
	if len(report) > sanitize.MaxInputLength {
		return fmt.Errorf("report exceeds %d characters", sanitize.MaxInputLength)
	}
	return nil
}

// handleAuditRecent serves the last n audit rows, newest first.
func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}

	n := 5
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = v
	}

	entries, err := s.store.Recent(n)
	if err != nil {
		s.logger.Error("audit query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handlePolicy summarizes the active policy without exposing rule text.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	pol := s.guard.Policy()

	kinds := make([]string, 0, len(pol.AllowedActionKinds))
	for k := range pol.AllowedActionKinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	writeJSON(w, http.StatusOK, map[string]any{
		"version":               pol.Version,
		"hash":                  pol.Hash,
		"base_dir":              pol.BaseDir,
		"allowed_action_kinds":  kinds,
		"blocked_clusters":      len(pol.Clusters),
		"blocked_patterns":      len(pol.Patterns),
		"high_volume_threshold": pol.HighVolumeThreshold,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
