// Package httpx is the request pipeline shared by every resource. Handlers
// return a Result instead of writing to the ResponseWriter, and a single
// finalization stage serializes the body once, fingerprints it, evaluates
// conditional requests and records idempotent outcomes.
package httpx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dejobratic/opsapi/internal/canonical"
	"github.com/dejobratic/opsapi/internal/etag"
	"github.com/dejobratic/opsapi/internal/idempotency"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
)

// Result is what a handler produced. A zero Status means 200.
type Result struct {
	Status int
	Body   any
	Header http.Header
}

// Handler is a request handler run inside the pipeline.
type Handler func(r *http.Request) (Result, error)

// Pipeline finalizes handler results.
type Pipeline struct {
	coordinator *idempotency.Coordinator
	logger      *slog.Logger
	metrics     *Metrics
	keyScope    func(*http.Request) string
}

type Option func(*Pipeline)

// WithKeyScope partitions idempotency keys by the value fn derives from the
// request, typically the caller identity.
func WithKeyScope(fn func(*http.Request) string) Option {
	return func(p *Pipeline) {
		p.keyScope = fn
	}
}

func NewPipeline(coordinator *idempotency.Coordinator, logger *slog.Logger, metrics *Metrics, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{coordinator: coordinator, logger: logger, metrics: metrics}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Read wraps a safe handler with conditional response evaluation.
func (p *Pipeline) Read(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h(r)
		if err != nil {
			WriteError(w, r, p.logger, err)
			return
		}

		resp, err := p.finalize(res)
		if err != nil {
			WriteError(w, r, p.logger, err)
			return
		}

		if isConditionalMethod(r.Method) && resp.status == http.StatusOK &&
			etag.Matches(r.Header.Get(etag.IfNoneMatchHeader), resp.etag) {
			p.metrics.RecordConditional(r.Context(), true)
			writeNotModified(w, resp)
			return
		}
		if isConditionalMethod(r.Method) && resp.status == http.StatusOK {
			p.metrics.RecordConditional(r.Context(), false)
		}

		resp.write(w, r.Method != http.MethodHead)
	}
}

// Write wraps a state-changing handler. With an Idempotency-Key the handler
// runs at most once per key and later requests receive the stored response.
// A key presented again with a different method, path or body is rejected.
// Without a key the handler runs unconditionally.
func (p *Pipeline) Write(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if key == "" {
			p.runUnkeyed(w, r, h)
			return
		}

		hash, err := hashRequest(r)
		if err != nil {
			WriteError(w, r, p.logger, err)
			return
		}
		req := idempotency.Request{Key: key, Hash: hash}
		if p.keyScope != nil {
			req.Scope = p.keyScope(r)
		}

		ctx := r.Context()
		rec, err := p.coordinator.Begin(ctx, req)
		if err != nil {
			WriteError(w, r, p.logger, err)
			return
		}
		if rec != nil {
			writeReplay(w, rec)
			return
		}

		res, err := h(r)
		if err != nil {
			p.coordinator.Abandon(ctx, req, err)
			WriteError(w, r, p.logger, err)
			return
		}

		resp, err := p.finalize(res)
		if err != nil {
			p.coordinator.Abandon(ctx, req, err)
			WriteError(w, r, p.logger, err)
			return
		}

		outcome := idempotency.Outcome{
			StatusCode:  resp.status,
			Fingerprint: resp.etag,
			Body:        resp.body,
		}
		if outcome.Body == nil {
			outcome.Body = []byte{}
		}
		if err := p.coordinator.Finish(ctx, req, outcome); err != nil {
			WriteError(w, r, p.logger, err)
			return
		}

		resp.write(w, true)
	}
}

func (p *Pipeline) runUnkeyed(w http.ResponseWriter, r *http.Request, h Handler) {
	res, err := h(r)
	if err != nil {
		WriteError(w, r, p.logger, err)
		return
	}

	resp, err := p.finalize(res)
	if err != nil {
		WriteError(w, r, p.logger, err)
		return
	}

	resp.write(w, true)
}

type response struct {
	status int
	header http.Header
	etag   string
	body   []byte
}

// finalize serializes the body exactly once and fingerprints it unless the
// handler already chose a validator.
func (p *Pipeline) finalize(res Result) (response, error) {
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}

	header := res.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	resp := response{status: status, header: header}
	if status == http.StatusNoContent {
		return resp, nil
	}

	body, err := json.Marshal(res.Body)
	if err != nil {
		return response{}, fmt.Errorf("encode response body: %w", err)
	}
	resp.body = body

	resp.etag = header.Get(etag.Header)
	if resp.etag == "" {
		tag, err := etag.Compute(json.RawMessage(body))
		if err != nil {
			return response{}, fmt.Errorf("fingerprint response: %w", err)
		}
		resp.etag = tag
		header.Set(etag.Header, tag)
	}

	return resp, nil
}

func (resp response) write(w http.ResponseWriter, withBody bool) {
	for k, values := range resp.header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	if resp.body != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.status)
	if withBody && resp.body != nil {
		_, _ = w.Write(resp.body)
	}
}

func writeNotModified(w http.ResponseWriter, resp response) {
	w.Header().Set(etag.Header, resp.etag)
	w.WriteHeader(http.StatusNotModified)
}

func writeReplay(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set(ReplayedHeader, "true")
	if rec.Fingerprint != "" {
		w.Header().Set(etag.Header, rec.Fingerprint)
	}
	if len(rec.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}

	status := rec.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(rec.Body)
}

// hashRequest fingerprints method, path and body, then restores the body for
// the handler. JSON bodies are canonicalized so key order and whitespace do
// not count as a different request.
func hashRequest(r *http.Request) (string, error) {
	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			return "", BadRequest("invalid_request", "request body could not be read")
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(data))
		body = data
	}
	if canon, err := canonical.EncodeRaw(body); err == nil {
		body = canon
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s %s\n", r.Method, r.URL.Path)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isConditionalMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
