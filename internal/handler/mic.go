package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/service"
)

// MicHandler serves the mic-level endpoints: list, details, roster,
// creation and the host's open/close/hide switches.
type MicHandler struct {
	Svc *service.MicService
}

// NewMicHandler panics on a nil service.
func NewMicHandler(svc *service.MicService) *MicHandler {
	if svc == nil {
		panic("nil service passed to NewMicHandler")
	}
	return &MicHandler{Svc: svc}
}

type micReq struct {
	MicID uint64 `json:"micId"`
}

// createMicReq accepts both {mic: MicForm} and the bare form.
type createMicReq struct {
	Mic *model.MicForm `json:"mic"`
	model.MicForm
}

type signupStateReq struct {
	MicID       uint64 `json:"micId"`
	SignupState *bool  `json:"micSignupState"`
}

type checkinStateReq struct {
	MicID       uint64 `json:"micId"`
	CheckinOpen *bool  `json:"checkinOpen"`
}

type hideReq struct {
	MicID uint64 `json:"micId"`
	Hide  *bool  `json:"hide"`
}

// List handles GET /mic/mics.
func (h *MicHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	mics, err := h.Svc.ListMics(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	if mics == nil {
		mics = []model.Mic{}
	}
	return c.JSON(http.StatusOK, mics)
}

// Details handles POST /micdetails {micId}.
func (h *MicHandler) Details(c echo.Context) error {
	var req micReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 {
		return micRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.GetMic(ctx, req.MicID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Performers handles POST /mic/performers {micId} and returns the roster
// ordered by position.
func (h *MicHandler) Performers(c echo.Context) error {
	var req micReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 {
		return micRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	roster, err := h.Svc.Roster(ctx, req.MicID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, roster)
}

// Create handles POST /mic/create {mic: MicForm}.  The bare form is
// accepted too, which is what POST /mic sends.
func (h *MicHandler) Create(c echo.Context) error {
	var req createMicReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	form := req.MicForm
	if req.Mic != nil {
		form = *req.Mic
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.CreateMic(ctx, actor(c), form)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ManageSignup handles POST /mic/managesignupstate {micId, micSignupState}.
func (h *MicHandler) ManageSignup(c echo.Context) error {
	var req signupStateReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 || req.SignupState == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "micId and micSignupState required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.ManageSignup(ctx, actor(c), req.MicID, *req.SignupState)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// ManageCheckin handles POST /mic/managecheckin {micId, checkinOpen}.
func (h *MicHandler) ManageCheckin(c echo.Context) error {
	var req checkinStateReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 || req.CheckinOpen == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "micId and checkinOpen required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.ManageCheckin(ctx, actor(c), req.MicID, *req.CheckinOpen)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Hide handles POST /mic/hide {micId, hide}.
func (h *MicHandler) Hide(c echo.Context) error {
	var req hideReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 || req.Hide == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "micId and hide required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.SetHidden(ctx, actor(c), req.MicID, *req.Hide)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}
