// Package http exposes the evaluation core's single external surface:
// POST /submit plus a liveness probe, grounded on cmd/judge-service's gin
// wiring (gin.New()+gin.Recovery(), a request-logging middleware) and the
// judge controller's decode-validate-delegate shape, retargeted from a
// submission-status lookup onto a synchronous evaluate-and-respond call.
package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"judgecore/internal/model"
	"judgecore/pkg/errs"
	"judgecore/pkg/response"
)

// Evaluator is the one capability the handler needs from the evaluation
// core; internal/evaluation.Service satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, sub model.Submission) (model.Report, error)
}

// submitRequest mirrors spec.md §6's request body.
type submitRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Problem  string `json:"problem"`
}

// Handler wires the evaluation core onto gin.
type Handler struct {
	eval Evaluator
}

// NewHandler builds a Handler bound to eval.
func NewHandler(eval Evaluator) *Handler {
	return &Handler{eval: eval}
}

// Register mounts the handler's routes onto router.
func (h *Handler) Register(router gin.IRouter) {
	router.POST("/submit", h.Submit)
	router.GET("/healthz", h.Healthz)
}

// Submit decodes a submission, runs it, and writes the literal Report body
// spec.md §6 specifies — no success/error envelope.
func (h *Handler) Submit(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, errs.Wrap(err, errs.MalformedPayload))
		return
	}

	var req submitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(c, errs.Wrap(err, errs.MalformedPayload))
		return
	}

	if req.Code == "" {
		response.Error(c, errs.New(errs.MissingCode))
		return
	}
	source, err := base64.StdEncoding.DecodeString(req.Code)
	if err != nil {
		response.Error(c, errs.Wrap(err, errs.InvalidBase64))
		return
	}

	report, err := h.eval.Evaluate(c.Request.Context(), model.Submission{
		Language:   req.Language,
		Source:     source,
		ProblemKey: req.Problem,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, report)
}

// readinessProbe is implemented by evaluation.Service; checked with a type
// assertion so Evaluator itself stays a one-method interface.
type readinessProbe interface {
	Ready() bool
}

// Healthz reports whether the process-bound sandbox has launched. Absent
// from spec.md's external interfaces but implied by §4.5's "block readiness
// of the HTTP surface until launch succeeds."
func (h *Handler) Healthz(c *gin.Context) {
	response.CORS(c)
	ready := true
	if p, ok := h.eval.(readinessProbe); ok {
		ready = p.Ready()
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": map[bool]string{true: "ok", false: "starting"}[ready]})
}
