package agent

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shivramiyer22/rideshare-sub001/task"
)

// Handler serves a task registry over the agent protocol so a Go
// implementation of an analytical capability can run as a remote agent.
type Handler struct {
	registry *task.Registry
	prefix   string
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithPrefix sets the path prefix stripped before the task name.
func WithPrefix(prefix string) HandlerOption {
	return func(h *Handler) { h.prefix = strings.TrimRight(prefix, "/") }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a Handler for reg.
func NewHandler(reg *task.Registry, opts ...HandlerOption) *Handler {
	h := &Handler{registry: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP decodes the input for the task named by the last path segment,
// runs it and encodes the output in the codec the caller accepts.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqCodec := CodecForContentType(r.Header.Get("Content-Type"))
	respCodec := reqCodec
	if accept := r.Header.Get("Accept"); accept != "" {
		respCodec = CodecForContentType(accept)
	}

	if r.Method != http.MethodPost {
		h.writeError(w, respCodec, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := task.Name(strings.Trim(strings.TrimPrefix(r.URL.Path, h.prefix), "/"))
	fn, ok := h.registry.Get(name)
	if !ok {
		h.writeError(w, respCodec, http.StatusNotFound, "unknown task "+string(name))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
	if err != nil {
		h.writeError(w, respCodec, http.StatusBadRequest, "read body")
		return
	}
	in, err := decodeInput(reqCodec, name, data)
	if err != nil {
		h.writeError(w, respCodec, http.StatusBadRequest, err.Error())
		return
	}

	out, err := fn(r.Context(), in)
	if err != nil {
		h.logger.Warn("agent task failed",
			slog.String("task", string(name)),
			slog.String("error", err.Error()),
		)
		h.writeError(w, respCodec, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := respCodec.Marshal(out)
	if err != nil {
		h.writeError(w, respCodec, http.StatusInternalServerError, "encode output")
		return
	}
	w.Header().Set("Content-Type", respCodec.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, codec Codec, status int, msg string) {
	body, err := codec.Marshal(ErrorBody{Error: msg})
	if err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", codec.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func decodeInput(codec Codec, name task.Name, data []byte) (task.Input, error) {
	var in task.Input
	switch name {
	case task.Forecasting:
		var v task.ForecastInput
		if err := codec.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		in = v
	case task.Analysis:
		var v task.RuleInput
		if err := codec.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		in = v
	case task.Recommendation:
		var v task.RecommendationInput
		if err := codec.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		in = v
	case task.WhatIf:
		var v task.WhatIfInput
		if err := codec.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		in = v
	default:
		return nil, fmt.Errorf("unknown task %q", name)
	}
	return in, nil
}
