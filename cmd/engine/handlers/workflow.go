package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/castingclouds/circuit-breaker-sub001/cmd/engine/container"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/eventstore"
	"github.com/castingclouds/circuit-breaker-sub001/pkg/workflow"
)

// WorkflowHandler exposes the HTTP operator surface over the engine's
// transition engine, event store, and dispatcher.
type WorkflowHandler struct {
	c *container.Container
}

// NewWorkflowHandler creates a handler bound to c.
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{c: c}
}

// PublishDefinition accepts a workflow definition as JSON or, when
// Content-Type is "application/yaml" or "application/x-yaml", as YAML,
// validates it, and publishes it.
func (h *WorkflowHandler) PublishDefinition(c echo.Context) error {
	body, err := decodeDefinitionBody(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := body.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.c.Store.PublishDefinition(c.Request().Context(), body); err != nil {
		h.c.Components.Logger.Error("failed to publish workflow definition", "identifier", body.Identifier, "error", err)
		return toHTTPError(err)
	}
	h.c.Router.AddWorkflow(body)

	return c.JSON(http.StatusCreated, body)
}

func decodeDefinitionBody(c echo.Context) (*workflow.WorkflowDefinition, error) {
	var def workflow.WorkflowDefinition
	ct := c.Request().Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") {
		if err := yaml.NewDecoder(c.Request().Body).Decode(&def); err != nil {
			return nil, errors.New("invalid yaml workflow definition: " + err.Error())
		}
		return &def, nil
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&def); err != nil {
		return nil, errors.New("invalid json workflow definition: " + err.Error())
	}
	return &def, nil
}

// GetDefinition fetches a published workflow definition by identifier.
func (h *WorkflowHandler) GetDefinition(c echo.Context) error {
	identifier := c.Param("identifier")
	def, err := h.c.Store.GetDefinition(c.Request().Context(), identifier)
	if err != nil {
		return toHTTPError(err)
	}
	if def == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown workflow: "+identifier)
	}
	return c.JSON(http.StatusOK, def)
}

// CreateInstanceRequest is the body for CreateInstance.
type CreateInstanceRequest struct {
	InitialData map[string]interface{} `json:"initial_data"`
	Metadata    map[string]interface{} `json:"metadata"`
	TriggeredBy string                  `json:"triggered_by"`
}

// CreateInstance creates a new token for the named workflow's initial place.
func (h *WorkflowHandler) CreateInstance(c echo.Context) error {
	identifier := c.Param("identifier")
	def, err := h.lookupDefinition(c, identifier)
	if err != nil {
		return err
	}

	var req CreateInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	token, err := h.c.Engine.CreateInstance(c.Request().Context(), def, req.InitialData, req.Metadata, req.TriggeredBy)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, token)
}

// GetToken fetches a single token by id.
func (h *WorkflowHandler) GetToken(c echo.Context) error {
	identifier := c.Param("identifier")
	tokenID := c.Param("token_id")

	token, err := h.c.Store.GetToken(c.Request().Context(), identifier, tokenID)
	if err != nil {
		return toHTTPError(err)
	}
	if token == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown token: "+tokenID)
	}
	return c.JSON(http.StatusOK, token)
}

// ListTokens lists all tokens for a workflow, or only those in a given
// place when the "place" query parameter is set.
func (h *WorkflowHandler) ListTokens(c echo.Context) error {
	identifier := c.Param("identifier")
	ctx := c.Request().Context()

	if place := c.QueryParam("place"); place != "" {
		tokens, err := h.c.Store.GetTokensInPlace(ctx, identifier, place)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, tokens)
	}

	tokens, err := h.c.Store.ListWorkflowTokens(ctx, identifier)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, tokens)
}

// FireTransitionRequest is the body for FireTransition.
type FireTransitionRequest struct {
	TransitionID string                 `json:"transition_id"`
	TriggeredBy  string                 `json:"triggered_by"`
	Data         map[string]interface{} `json:"data"`
}

// FireTransition fires a named transition against an existing token.
func (h *WorkflowHandler) FireTransition(c echo.Context) error {
	identifier := c.Param("identifier")
	tokenID := c.Param("token_id")
	def, err := h.lookupDefinition(c, identifier)
	if err != nil {
		return err
	}

	var req FireTransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TransitionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "transition_id is required")
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	ctx := c.Request().Context()
	current, err := h.c.Store.GetToken(ctx, identifier, tokenID)
	if err != nil {
		return toHTTPError(err)
	}
	if current == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown token: "+tokenID)
	}

	next, err := h.c.Engine.Fire(ctx, def, current, req.TransitionID, req.TriggeredBy, req.Data)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, next)
}

// IngestEvent publishes an arbitrary external payload onto the
// workflow's event stream so the dispatcher (running in-process here,
// or as a standalone cmd/dispatcher consumer) picks it up. This is a
// test/dev ingress; production deployments front the dispatcher with
// their own webhook receiver and call this only for local iteration.
func (h *WorkflowHandler) IngestEvent(c echo.Context) error {
	identifier := c.Param("identifier")
	subject := c.QueryParam("subject")
	if subject == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject query parameter is required")
	}

	var payload map[string]interface{}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json payload")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to encode payload")
	}

	if err := h.c.Store.AppendEvent(c.Request().Context(), identifier, subject, payload); err != nil {
		return toHTTPError(err)
	}

	msg := eventstore.Message{ID: uuid.New().String(), Subject: subject, Payload: string(raw)}
	if err := h.c.Router.Handler()(c.Request().Context(), msg); err != nil {
		h.c.Components.Logger.Warn("dispatcher rejected ingested event", "subject", subject, "error", err)
	}
	return c.NoContent(http.StatusAccepted)
}

// ListDeadLetters lists recent dead-lettered events for a workflow.
func (h *WorkflowHandler) ListDeadLetters(c echo.Context) error {
	identifier := c.Param("identifier")
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.c.DLQ.List(c.Request().Context(), identifier, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *WorkflowHandler) lookupDefinition(c echo.Context, identifier string) (*workflow.WorkflowDefinition, error) {
	def, err := h.c.Store.GetDefinition(c.Request().Context(), identifier)
	if err != nil {
		return nil, toHTTPError(err)
	}
	if def == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown workflow: "+identifier)
	}
	return def, nil
}

// toHTTPError maps a workflow.Error's Kind to an HTTP status code;
// any other error is reported as a 500.
func toHTTPError(err error) error {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	switch werr.Kind {
	case workflow.KindUnknownWorkflow, workflow.KindUnknownToken, workflow.KindUnknownTransition, workflow.KindUnknownRule:
		return echo.NewHTTPError(http.StatusNotFound, werr.Error())
	case workflow.KindInvalidTransition, workflow.KindRuleDenied, workflow.KindMappingError:
		return echo.NewHTTPError(http.StatusBadRequest, werr.Error())
	case workflow.KindStale:
		return echo.NewHTTPError(http.StatusConflict, werr.Error())
	case workflow.KindTimeout:
		return echo.NewHTTPError(http.StatusGatewayTimeout, werr.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, werr.Error())
	}
}
