// Package httpx exposes the build and run surface over HTTP.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fnforge/fnforge/internal/domain"
	"github.com/fnforge/fnforge/internal/service/deploy"
	"github.com/fnforge/fnforge/internal/service/lifecycle"
	"github.com/fnforge/fnforge/internal/service/run"
	"github.com/fnforge/fnforge/internal/store"
	"github.com/fnforge/fnforge/pkg/config"
)

const healthCheckTimeout = 2 * time.Second

// PodLogReader serves the log of a run pod.
type PodLogReader interface {
	PodLogs(ctx context.Context, name string) ([]byte, error)
}

// Router wires HTTP endpoints to the build and run services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	backend   deploy.Backend
	deploy    deploy.Service
	runs      run.Service
	tracker   *lifecycle.Tracker
	functions store.FunctionStore
	runStore  store.RunStore
	podLogs   PodLogReader
	dbHealth  func(context.Context) error
	cfg       config.ServiceConfig

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	buildTotal         *prometheus.CounterVec
	runTotal           *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies. The config supplies
// server-side defaults for deploy options; request bodies override them
// per call. With the auto-build default set, a run submitted against an
// undeployed function triggers a blocking build first instead of being
// rejected.
func NewRouter(logger *slog.Logger, backend deploy.Backend, deploySvc deploy.Service, runSvc run.Service, tracker *lifecycle.Tracker, functions store.FunctionStore, runStore store.RunStore, podLogs PodLogReader, dbHealth func(context.Context) error, cfg config.ServiceConfig) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		backend:   backend,
		deploy:    deploySvc,
		runs:      runSvc,
		tracker:   tracker,
		functions: functions,
		runStore:  runStore,
		podLogs:   podLogs,
		dbHealth:  dbHealth,
		cfg:       cfg,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/build", r.audit(r.handleBuild))
	r.mux.HandleFunc("/deploy", r.audit(r.handleDeploy))
	r.mux.HandleFunc("/functions", r.audit(r.handleFunctions))
	r.mux.HandleFunc("/functions/", r.audit(r.handleFunctionSubroutes))
	r.mux.HandleFunc("/runs", r.audit(r.handleRuns))
	r.mux.HandleFunc("/runs/", r.audit(r.handleRunByID))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		route := routeLabel(req.URL.Path)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// routeLabel collapses identifier segments to keep metric cardinality low.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/functions/"):
		if strings.HasSuffix(path, "/status") {
			return "/functions/{project}/{name}/status"
		}
		return "/functions/{project}/{name}"
	case strings.HasPrefix(path, "/runs/"):
		if strings.HasSuffix(path, "/logs") {
			return "/runs/{project}/{uid}/logs"
		}
		return "/runs/{project}/{uid}"
	default:
		return path
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{"status": "down", "error": err.Error()}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// BuildRequest is the wire form of a remote build submission.
type BuildRequest struct {
	Function domain.Function     `json:"function"`
	Options  deploy.BuildOptions `json:"options"`
}

func (r *Router) handleBuild(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var body BuildRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Function.Meta.Name == "" {
		writeError(w, http.StatusBadRequest, "function name required")
		return
	}
	result, err := r.backend.RemoteBuild(req.Context(), &body.Function, body.Options)
	if err != nil {
		r.recordBuild("rejected")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	r.recordBuild("submitted")
	deploy.ApplyStatusPatch(&body.Function, deploy.StatusPatch{State: result.State, BuildPod: result.BuildPod})
	if err := r.tracker.SaveFunction(req.Context(), &body.Function); err != nil {
		r.logger.Error("persist function failed", "function", body.Function.Key(), "error", err)
	}
	writeJSON(w, http.StatusAccepted, result)
}

// DeployRequest is the wire form of a coordinated deploy. Pointer fields
// left unset fall back to the server's configured defaults.
type DeployRequest struct {
	Function      domain.Function   `json:"function"`
	Watch         bool              `json:"watch,omitempty"`
	WithSDK       *bool             `json:"with_sdk,omitempty"`
	SDKVersion    string            `json:"sdk_version,omitempty"`
	SkipDeployed  *bool             `json:"skip_deployed,omitempty"`
	InPipeline    *bool             `json:"in_pipeline,omitempty"`
	ShowOnFailure *bool             `json:"show_on_failure,omitempty"`
	BuilderEnv    map[string]string `json:"builder_env,omitempty"`
}

// deployOptions merges the request body with the configured defaults.
func (r *Router) deployOptions(body DeployRequest) deploy.Options {
	opts := deploy.Options{
		Watch:         body.Watch,
		WithSDK:       body.WithSDK,
		SDKVersion:    body.SDKVersion,
		SkipDeployed:  r.cfg.SkipDeployed,
		InPipeline:    r.cfg.InPipeline,
		ShowOnFailure: r.cfg.ShowOnFailure,
		BuilderEnv:    body.BuilderEnv,
	}
	if opts.WithSDK == nil {
		opts.WithSDK = r.cfg.WithSDK
	}
	if body.SkipDeployed != nil {
		opts.SkipDeployed = *body.SkipDeployed
	}
	if body.InPipeline != nil {
		opts.InPipeline = *body.InPipeline
	}
	if body.ShowOnFailure != nil {
		opts.ShowOnFailure = *body.ShowOnFailure
	}
	return opts
}

func (r *Router) handleDeploy(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var body DeployRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	fn := body.Function
	if fn.Meta.Name == "" {
		writeError(w, http.StatusBadRequest, "function name required")
		return
	}
	ready, err := r.deploy.Deploy(req.Context(), &fn, r.deployOptions(body))
	if err != nil {
		r.recordBuild("failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := r.tracker.SaveFunction(req.Context(), &fn); err != nil {
		r.logger.Error("persist function failed", "function", fn.Key(), "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ready": ready, "function": fn})
}

func (r *Router) handleFunctions(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		project := req.URL.Query().Get("project")
		functions, err := r.functions.ListFunctions(req.Context(), project)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list functions failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"functions": functions})
	case http.MethodPost:
		var fn domain.Function
		if err := json.NewDecoder(req.Body).Decode(&fn); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if fn.Meta.Name == "" {
			writeError(w, http.StatusBadRequest, "function name required")
			return
		}
		if fn.Meta.Project == "" {
			fn.Meta.Project = "default"
		}
		if err := r.tracker.SaveFunction(req.Context(), &fn); err != nil {
			writeError(w, http.StatusInternalServerError, "persist function failed")
			return
		}
		writeJSON(w, http.StatusCreated, fn)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleFunctionSubroutes(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(req.URL.Path, "/functions/"), "/"), "/")
	switch {
	case len(parts) == 2:
		r.handleFunctionGet(w, req, parts[0], parts[1])
	case len(parts) == 3 && parts[2] == "status":
		r.handleBuildStatus(w, req, parts[0], parts[1])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (r *Router) handleFunctionGet(w http.ResponseWriter, req *http.Request, project, name string) {
	fn, err := r.functions.GetFunction(req.Context(), project, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "function not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get function failed")
		return
	}
	writeJSON(w, http.StatusOK, fn)
}

// BuildStatusResponse carries the build state and the log bytes from the
// requested offset.
type BuildStatusResponse struct {
	State    domain.BuildState `json:"state,omitempty"`
	Image    string            `json:"image,omitempty"`
	BuildPod string            `json:"build_pod,omitempty"`
	Log      string            `json:"log,omitempty"`
}

func (r *Router) handleBuildStatus(w http.ResponseWriter, req *http.Request, project, name string) {
	persist := true
	fn, err := r.functions.GetFunction(req.Context(), project, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// the build registry may still know the function; a status
			// query must not create a store record as a side effect
			fn = &domain.Function{Meta: domain.Meta{Project: project, Name: name}}
			persist = false
		} else {
			writeError(w, http.StatusInternalServerError, "get function failed")
			return
		}
	}

	query := req.URL.Query()
	offset, _ := strconv.ParseInt(query.Get("offset"), 10, 64)
	wantLogs := query.Get("logs") != "false"

	chunk, patch, err := r.backend.BuilderStatus(req.Context(), fn, offset, wantLogs)
	if err != nil {
		if errors.Is(err, deploy.ErrBuildNotFound) {
			writeError(w, http.StatusNotFound, "build not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "build status failed")
		return
	}
	deploy.ApplyStatusPatch(fn, patch)
	if persist {
		if err := r.tracker.SaveFunction(req.Context(), fn); err != nil {
			r.logger.Error("persist function failed", "function", fn.Key(), "error", err)
		}
	}
	writeJSON(w, http.StatusOK, BuildStatusResponse{
		State:    patch.State,
		Image:    patch.Image,
		BuildPod: patch.BuildPod,
		Log:      string(chunk),
	})
}

// RunRequest is the wire form of a run submission.
type RunRequest struct {
	Project  string            `json:"project"`
	Function string            `json:"function"`
	Run      domain.RunSpec    `json:"run"`
	Name     string            `json:"name,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

func (r *Router) handleRuns(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		project := req.URL.Query().Get("project")
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		runs, err := r.runStore.ListRuns(req.Context(), project, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	case http.MethodPost:
		r.handleRunSubmit(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleRunSubmit(w http.ResponseWriter, req *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Project == "" {
		body.Project = "default"
	}
	if body.Function == "" {
		writeError(w, http.StatusBadRequest, "function name required")
		return
	}
	fn, err := r.functions.GetFunction(req.Context(), body.Project, body.Function)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "function not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get function failed")
		return
	}
	if !r.tracker.IsDeployed(req.Context(), fn) {
		if !r.cfg.AutoBuild && !fn.Spec.Build.AutoBuild {
			r.recordRun("rejected")
			writeError(w, http.StatusConflict, fmt.Sprintf("function %s is not deployed", fn.Key()))
			return
		}
		r.logger.Info("function not deployed, building before run", "function", fn.Key())
		if _, err := r.deploy.Deploy(req.Context(), fn, deploy.Options{Watch: true}); err != nil {
			r.recordRun("rejected")
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("auto build failed: %v", err))
			return
		}
		if err := r.tracker.SaveFunction(req.Context(), fn); err != nil {
			r.logger.Error("persist function failed", "function", fn.Key(), "error", err)
		}
	}

	name := body.Name
	if name == "" {
		name = body.Function
	}
	runRec := &domain.Run{
		Meta: domain.RunMeta{
			Name:    name,
			Project: body.Project,
			UID:     uuid.NewString(),
			Labels:  body.Labels,
		},
		Spec: body.Run,
	}
	runRec.Spec.Function = body.Function
	if r.runStore != nil {
		if err := r.runStore.CreateRun(req.Context(), runRec); err != nil {
			writeError(w, http.StatusInternalServerError, "persist run failed")
			return
		}
	}

	submission, err := r.runs.Submit(req.Context(), fn, runRec)
	if err != nil {
		r.recordRun("rejected")
		runRec.Status.State = domain.RunStateError
		runRec.Status.StatusText = err.Error()
		runRec.Status.UpdatedAt = time.Now().UTC()
		if r.runStore != nil {
			_ = r.runStore.UpdateRunStatus(req.Context(), runRec.Meta.Project, runRec.Meta.UID, runRec.Status)
		}
		var rejection *run.SubmissionError
		if errors.As(err, &rejection) {
			writeError(w, http.StatusUnprocessableEntity, rejection.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "run submission failed")
		return
	}
	r.recordRun("submitted")
	if r.runStore != nil {
		_ = r.runStore.UpdateRunStatus(req.Context(), runRec.Meta.Project, runRec.Meta.UID, runRec.Status)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run":       runRec,
		"pod":       submission.PodName,
		"namespace": submission.Namespace,
	})
}

func (r *Router) handleRunByID(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(req.URL.Path, "/runs/"), "/"), "/")
	switch {
	case len(parts) == 2:
	case len(parts) == 3 && parts[2] == "logs":
		r.handleRunLogs(w, req, parts[0], parts[1])
		return
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	runRec, err := r.runStore.GetRun(req.Context(), parts[0], parts[1])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, runRec)
}

func (r *Router) handleRunLogs(w http.ResponseWriter, req *http.Request, project, uid string) {
	if r.podLogs == nil {
		writeError(w, http.StatusNotImplemented, "pod logs not available")
		return
	}
	runRec, err := r.runStore.GetRun(req.Context(), project, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	if runRec.Status.PodName == "" {
		writeError(w, http.StatusNotFound, "run has no pod")
		return
	}
	data, err := r.podLogs.PodLogs(req.Context(), runRec.Status.PodName)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetch pod logs failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
