package session

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/arbitration"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/dto"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/peer"
	"github.com/Anurag-amrev-7557/FxSync-sub003/internal/shared"
)

type Handler struct {
	store       *Store
	peerStore   *peer.Store
	coordinator *arbitration.Coordinator
	logger      *slog.Logger
}

func NewHandler(store *Store, peerStore *peer.Store, coordinator *arbitration.Coordinator, logger *slog.Logger) *Handler {
	return &Handler{
		store:       store,
		peerStore:   peerStore,
		coordinator: coordinator,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions", h.Create)
	g.GET("/sessions/:id", h.Get)
	g.DELETE("/sessions/:id", h.End)
	g.GET("/sessions/:id/members", h.Members)
	g.GET("/sessions/:id/arbitration", h.Arbitration)
}

// Create godoc
// @Summary Create a session
// @Description Creates a playback session. The first peer to attach takes the controller seat.
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body dto.CreateSessionRequest true "Session parameters"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} shared.APIError
// @Router /sessions [post]
func (h *Handler) Create(c echo.Context) error {
	var req dto.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	sess := &Session{
		Name:      req.Name,
		CreatedBy: req.CreatedBy,
	}
	if err := h.store.Create(c.Request().Context(), sess); err != nil {
		h.logger.Error("create session failed", "error", err)
		return shared.InternalError("create_failed", "failed to create session")
	}

	h.logger.Info("session created", "session_id", sess.ID, "created_by", sess.CreatedBy)
	return c.JSON(http.StatusCreated, sessionToResponse(sess))
}

// Get godoc
// @Summary Get a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 404 {object} shared.APIError
// @Router /sessions/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	sess, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("session_not_found", "session not found")
		}
		return shared.InternalError("get_failed", "failed to get session")
	}
	return c.JSON(http.StatusOK, sessionToResponse(sess))
}

// End godoc
// @Summary End a session
// @Description Marks the session ended and drops its arbitration state.
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 204 "No Content"
// @Failure 404 {object} shared.APIError
// @Router /sessions/{id} [delete]
func (h *Handler) End(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.End(c.Request().Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("session_not_found", "session not found")
		}
		return shared.InternalError("end_failed", "failed to end session")
	}

	h.coordinator.DropSession(c.Request().Context(), id)
	h.logger.Info("session ended", "session_id", id)
	return c.NoContent(http.StatusNoContent)
}

// Members godoc
// @Summary List session members
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.MembersResponse
// @Failure 404 {object} shared.APIError
// @Router /sessions/{id}/members [get]
func (h *Handler) Members(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	exists, err := h.store.Exists(ctx, id)
	if err != nil {
		return shared.InternalError("get_failed", "failed to get session")
	}
	if !exists {
		return shared.NotFound("session_not_found", "session not found")
	}

	ids, err := h.store.Members(ctx, id)
	if err != nil {
		return shared.InternalError("members_failed", "failed to list members")
	}

	resp := dto.MembersResponse{
		SessionID: id,
		Members:   make([]dto.MemberResponse, 0, len(ids)),
	}
	for _, clientID := range ids {
		name := h.peerStore.DisplayName(ctx, clientID)
		if name == "" {
			name = string(clientID)
		}
		resp.Members = append(resp.Members, dto.MemberResponse{
			ClientID:    string(clientID),
			DisplayName: name,
			Online:      true,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// Arbitration godoc
// @Summary Get controller state
// @Description Returns the current controller, pending requests, and epoch for the session.
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} dto.ArbitrationResponse
// @Failure 404 {object} shared.APIError
// @Router /sessions/{id}/arbitration [get]
func (h *Handler) Arbitration(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	exists, err := h.store.Exists(ctx, id)
	if err != nil {
		return shared.InternalError("get_failed", "failed to get session")
	}
	if !exists {
		return shared.NotFound("session_not_found", "session not found")
	}

	st := h.coordinator.Snapshot(ctx, id)
	resp := dto.ArbitrationResponse{
		SessionID:          id,
		ControllerClientID: string(st.ControllerClientID),
		PendingRequests:    make([]dto.PendingRequestResponse, 0, len(st.PendingRequests)),
		Epoch:              st.Epoch,
	}
	for _, r := range st.PendingRequests {
		resp.PendingRequests = append(resp.PendingRequests, dto.PendingRequestResponse{
			ClientID:      string(r.ClientID),
			RequesterName: r.RequesterName,
			RequestTime:   r.RequestTime,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func sessionToResponse(s *Session) dto.SessionResponse {
	return dto.SessionResponse{
		ID:           s.ID,
		Name:         s.Name,
		CreatedBy:    s.CreatedBy,
		Status:       string(s.Status),
		StartedAt:    s.StartedAt,
		LastActiveAt: s.LastActiveAt,
	}
}
