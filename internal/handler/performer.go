package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/open-mic/internal/model"
	"github.com/iliyamo/open-mic/internal/service"
)

// PerformerHandler serves the roster actions.  Performer actions (signup,
// check-in, self removal) accept anonymous callers; host actions run on
// routes behind JWTAuth and are authorized by the service.
type PerformerHandler struct {
	Svc *service.MicService
}

// NewPerformerHandler panics on a nil service.
func NewPerformerHandler(svc *service.MicService) *PerformerHandler {
	if svc == nil {
		panic("nil service passed to NewPerformerHandler")
	}
	return &PerformerHandler{Svc: svc}
}

// selfReq is the body of signup and check-in.  Anon is absent for
// signed-in callers.
type selfReq struct {
	MicID uint64              `json:"micId"`
	Anon  *model.AnonIdentity `json:"anon"`
}

// entryReq names one roster entry.  userId is the entry's ID, not an
// account ID.
type entryReq struct {
	MicID       uint64              `json:"micId"`
	PerformerID uint64              `json:"userId"`
	SetComplete bool                `json:"setComplete"`
	Anon        *model.AnonIdentity `json:"anon"`
}

type setNextReq struct {
	MicID      uint64  `json:"micId"`
	CurPerfID  *uint64 `json:"curPerfId"`
	MovePerfID uint64  `json:"movePerfId"`
}

func bindEntry(c echo.Context) (entryReq, bool) {
	var req entryReq
	if err := c.Bind(&req); err != nil || req.MicID == 0 || req.PerformerID == 0 {
		return req, false
	}
	return req, true
}

func entryRequired(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "micId and userId required"})
}

// UserSignup handles POST /mic/user/signup.
func (h *PerformerHandler) UserSignup(c echo.Context) error { return h.signup(c, false) }

// WaitingSignup handles POST /mic/user/waitinglist/signup and its
// anonymous twin /mic/waitinglist/signup.
func (h *PerformerHandler) WaitingSignup(c echo.Context) error { return h.signup(c, true) }

// AnonSignup handles POST /mic/signup.
func (h *PerformerHandler) AnonSignup(c echo.Context) error { return h.signup(c, false) }

func (h *PerformerHandler) signup(c echo.Context, asWaiting bool) error {
	var req selfReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 {
		return micRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.Signup(ctx, actor(c), req.MicID, req.Anon, asWaiting)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// CheckIn handles POST /mic/checkin {micId, anon?}.
func (h *PerformerHandler) CheckIn(c echo.Context) error {
	var req selfReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 {
		return micRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Svc.CheckIn(ctx, actor(c), req.MicID, req.Anon); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AdminCheckIn handles POST /mic/admin/checkin {micId, userId}.
func (h *PerformerHandler) AdminCheckIn(c echo.Context) error {
	req, ok := bindEntry(c)
	if !ok {
		return entryRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Svc.AdminCheckIn(ctx, actor(c), req.MicID, req.PerformerID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CompleteSet handles POST /mic/completeset {micId, userId}.
func (h *PerformerHandler) CompleteSet(c echo.Context) error {
	req, ok := bindEntry(c)
	if !ok {
		return entryRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.CompleteSet(ctx, actor(c), req.MicID, req.PerformerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Skip handles POST /mic/skip {micId, userId, setComplete?}.
func (h *PerformerHandler) Skip(c echo.Context) error {
	req, ok := bindEntry(c)
	if !ok {
		return entryRequired(c)
	}
	return h.skip(c, req, req.SetComplete)
}

// MissedSet handles POST /mic/missedset, a skip that closes the set.
func (h *PerformerHandler) MissedSet(c echo.Context) error {
	req, ok := bindEntry(c)
	if !ok {
		return entryRequired(c)
	}
	return h.skip(c, req, true)
}

func (h *PerformerHandler) skip(c echo.Context, req entryReq, closeSet bool) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.Skip(ctx, actor(c), req.MicID, req.PerformerID, closeSet)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// SetNext handles POST /mic/performer/setnext {micId, curPerfId, movePerfId}.
func (h *PerformerHandler) SetNext(c echo.Context) error {
	var req setNextReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 || req.MovePerfID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "micId and movePerfId required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.SetNext(ctx, actor(c), req.MicID, req.CurPerfID, req.MovePerfID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// RemoveSelf handles DELETE /mic/removeself {micId}.
func (h *PerformerHandler) RemoveSelf(c echo.Context) error {
	var req micReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if req.MicID == 0 {
		return micRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Svc.RemoveSelf(ctx, actor(c), req.MicID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveAnon handles DELETE /mic/removeanonuser {micId, userId, anon}.
func (h *PerformerHandler) RemoveAnon(c echo.Context) error {
	req, ok := bindEntry(c)
	if !ok {
		return entryRequired(c)
	}
	var anon model.AnonIdentity
	if req.Anon != nil {
		anon = *req.Anon
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Svc.RemoveAnon(ctx, actor(c), req.MicID, req.PerformerID, anon); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AdminRemove handles DELETE /admin/mic/removeuser {micId, userId}.
func (h *PerformerHandler) AdminRemove(c echo.Context) error {
	req, ok := bindEntry(c)
	if !ok {
		return entryRequired(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.AdminRemove(ctx, actor(c), req.MicID, req.PerformerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}
