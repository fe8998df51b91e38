package httpremote

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velmie/syncbox"
)

const defaultMaxBodyBytes = 1 << 20

type handlerConfig struct {
	logger       syncbox.Logger
	apiKey       string
	maxBodyBytes int64
}

// HandlerOption configures the handler returned by NewHandler.
type HandlerOption func(*handlerConfig)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger syncbox.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequiredAPIKey rejects requests whose apikey header or bearer token
// does not match key.
func WithRequiredAPIKey(key string) HandlerOption {
	return func(c *handlerConfig) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithMaxBodyBytes caps the request body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(c *handlerConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

type handler struct {
	remote syncbox.Remote
	cfg    handlerConfig
}

// NewHandler serves remote over HTTP:
//
//	GET  /health
//	POST /sync/apply        200 accepted, 422 rejected, 400 malformed
//	POST /sync/apply-batch  200 with one result per op
func NewHandler(remote syncbox.Remote, opts ...HandlerOption) http.Handler {
	if remote == nil {
		panic("httpremote: nil Remote")
	}
	cfg := handlerConfig{
		logger:       syncbox.NopLogger{},
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &handler{remote: remote, cfg: cfg}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Group(func(api chi.Router) {
		api.Use(h.authenticate)
		api.Post(ApplyPath, h.apply)
		api.Post(BatchPath, h.applyBatch)
	})

	return r
}

func (h *handler) apply(w http.ResponseWriter, r *http.Request) {
	var env syncbox.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.maxBodyBytes)).Decode(&env); err != nil {
		writeResult(w, http.StatusBadRequest, syncbox.Result{Message: fmt.Sprintf("malformed envelope: %v", err)})
		return
	}
	preview := syncbox.RequestPreview{
		Method: strings.TrimSpace(r.Header.Get(headerPreviewMethod)),
		Path:   strings.TrimSpace(r.Header.Get(headerPreviewPath)),
		Body:   env.Body,
	}
	if preview.Method == "" || preview.Path == "" {
		writeResult(w, http.StatusBadRequest, syncbox.Result{Message: "missing preview headers"})
		return
	}
	if key := r.Header.Get(headerIdempotencyKey); key != "" && key != env.OpID {
		writeResult(w, http.StatusBadRequest, syncbox.Result{Message: "idempotency key does not match opId"})
		return
	}

	result := h.remote.Apply(r.Context(), env, preview)
	status := http.StatusOK
	if !result.OK {
		status = http.StatusUnprocessableEntity
		h.cfg.logger.Info("syncbox apply rejected", "op_id", env.OpID, "path", preview.Path, "message", result.Message)
	}
	writeResult(w, status, result)
}

func (h *handler) applyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.maxBodyBytes)).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, syncbox.Result{Message: fmt.Sprintf("malformed batch: %v", err)})
		return
	}

	results := make([]syncbox.Result, 0, len(req.Ops))
	for _, op := range req.Ops {
		results = append(results, h.remote.Apply(r.Context(), op.Envelope, op.Preview))
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(headerAPIKey)
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get(headerAuthorization), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.cfg.apiKey)) != 1 {
			writeResult(w, http.StatusUnauthorized, syncbox.Result{Message: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeResult(w http.ResponseWriter, status int, result syncbox.Result) {
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
