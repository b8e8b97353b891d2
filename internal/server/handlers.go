package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"sttmforge/internal/governor"
	"sttmforge/internal/policy"
)

// TaskRequest is the body of POST /api/v1/tasks.
type TaskRequest struct {
	Policy      string          `json:"policy"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

// SuccessResponse is returned for a succeeded task.
type SuccessResponse struct {
	Status          string   `json:"status"`
	Artifact        any      `json:"artifact"`
	AttemptCount    int      `json:"attempt_count"`
	NonStrictIssues []string `json:"non_strict_issues"`
	TaskID          string   `json:"task_id"`
}

// ErrorResponse is returned for every task that did not succeed.
type ErrorResponse struct {
	ErrorCode     string     `json:"error_code"`
	ErrorMessage  string     `json:"error_message"`
	FailureReason []string   `json:"failure_reason,omitempty"`
	Retries       int        `json:"retries,omitempty"`
	History       [][]string `json:"history,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// BatchRequest is the body of POST /api/v1/batch.
type BatchRequest struct {
	Tasks []TaskRequest `json:"tasks"`
}

// BatchItem is one task result within a batch response.
type BatchItem struct {
	HTTPStatus int `json:"http_status"`
	Body       any `json:"body"`
}

// BatchResponse is the body of POST /api/v1/batch.
type BatchResponse struct {
	Results []BatchItem `json:"results"`
}

const codeBadRequest = "BAD_REQUEST"

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleTask(c echo.Context) error {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "invalid request body"})
	}

	task, err := s.buildTask(req)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: governor.CodeInvalidTask, ErrorMessage: err.Error()})
	}

	status, body := s.run(c.Request().Context(), task)
	return c.JSON(status, body)
}

func (s *Server) handleMappingCSV(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "multipart field 'file' is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "cannot read uploaded file"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "cannot read uploaded file"})
	}

	payload, err := policy.NewMappingPayload(string(data))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: governor.CodeInvalidTask, ErrorMessage: err.Error()})
	}

	maxAttempts := 0
	if v := c.FormValue("max_attempts"); v != "" {
		if maxAttempts, err = strconv.Atoi(v); err != nil || maxAttempts < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "max_attempts must be a non-negative integer"})
		}
	}

	s.logger.Debug("mapping upload",
		zap.String("filename", fh.Filename),
		zap.Int("target_columns", len(payload.Metadata.TargetColumns)))

	status, body := s.run(c.Request().Context(), governor.NewTask(policy.NameMapping, payload, maxAttempts))
	return c.JSON(status, body)
}

func (s *Server) handleBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "invalid request body"})
	}
	if len(req.Tasks) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{ErrorCode: codeBadRequest, ErrorMessage: "tasks must not be empty"})
	}

	items := make([]BatchItem, len(req.Tasks))
	var tasks []governor.Task
	var slots []int
	for i, tr := range req.Tasks {
		task, err := s.buildTask(tr)
		if err != nil {
			items[i] = BatchItem{
				HTTPStatus: http.StatusBadRequest,
				Body:       ErrorResponse{ErrorCode: governor.CodeInvalidTask, ErrorMessage: err.Error()},
			}
			continue
		}
		tasks = append(tasks, task)
		slots = append(slots, i)
	}

	for j, r := range governor.RunBatch(c.Request().Context(), s.gov, tasks, s.batchLimit) {
		status, body := respond(r.Task, r.Outcome, r.Err)
		items[slots[j]] = BatchItem{HTTPStatus: status, Body: body}
	}
	return c.JSON(http.StatusOK, BatchResponse{Results: items})
}

func (s *Server) buildTask(req TaskRequest) (governor.Task, error) {
	p, err := s.gov.Registry().Lookup(req.Policy)
	if err != nil {
		return governor.Task{}, err
	}
	if req.MaxAttempts < 0 {
		return governor.Task{}, errors.New("max_attempts must not be negative")
	}
	payload, err := p.DecodePayload(req.Payload)
	if err != nil {
		return governor.Task{}, err
	}
	return governor.NewTask(p.Name, payload, req.MaxAttempts), nil
}

func (s *Server) run(ctx context.Context, task governor.Task) (int, any) {
	out, err := s.gov.Run(ctx, task)
	status, body := respond(task, out, err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("task failed", zap.String("task_id", task.ID), zap.Int("status", status), zap.Error(err))
	}
	return status, body
}

func respond(task governor.Task, out *governor.Outcome, err error) (int, any) {
	var exhausted *governor.ExhaustionError
	var fatal *governor.FatalConfigurationError
	switch {
	case err == nil:
		return http.StatusOK, SuccessResponse{
			Status:          string(out.Status),
			Artifact:        artifactBody(out),
			AttemptCount:    out.AttemptCount,
			NonStrictIssues: out.NonStrictMessages(),
			TaskID:          out.TaskID,
		}
	case errors.As(err, &exhausted):
		return exhausted.HTTPStatus, ErrorResponse{
			ErrorCode:     exhausted.ErrorCode,
			ErrorMessage:  exhausted.Message,
			FailureReason: exhausted.FailureReasons,
			Retries:       exhausted.Retries,
			History:       exhausted.History,
			TaskID:        task.ID,
		}
	case errors.As(err, &fatal):
		return fatal.HTTPStatus, ErrorResponse{
			ErrorCode:    fatal.Code,
			ErrorMessage: fatal.Err.Error(),
			TaskID:       task.ID,
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{ErrorCode: "INTERNAL_ERROR", ErrorMessage: err.Error(), TaskID: task.ID}
	}
}

// artifactBody returns JSON artifacts as nested JSON and code as a string.
func artifactBody(out *governor.Outcome) any {
	text := out.ArtifactText()
	if out.Artifact != nil {
		if _, ok := out.Artifact.Value.(map[string]any); ok && json.Valid([]byte(text)) {
			return json.RawMessage(text)
		}
	}
	return text
}
