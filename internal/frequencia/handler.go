package frequencia

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

// RegisterRoutes wires the engine's four operations plus the buscativa
// panel reads. The frequência endpoints sit behind the module gate; the
// buscativa panel is open, as in the original workflow.
func RegisterRoutes(api *gin.RouterGroup, svc *Service, gate gin.HandlerFunc) {
	h := &Handler{svc: svc}

	guarded := api.Group("", gate)
	// POST /frequencias — submit/replace a weekly record (may open a buscativa)
	guarded.POST("/frequencias", h.Record)
	// GET /frequencias — joined panel listing
	guarded.GET("/frequencias", h.List)
	// DELETE /frequencias — password-gated bulk delete with case cascade
	guarded.DELETE("/frequencias", h.Delete)

	// GET /buscativas — case-first listing
	api.GET("/buscativas", h.ListFollowUps)
	// PUT /buscativas/:buscativa_ulid — resolve (pending -> completed)
	api.PUT("/buscativas/:buscativa_ulid", h.Resolve)
	// POST /buscativas/:buscativa_ulid/cancel — administrative void
	api.POST("/buscativas/:buscativa_ulid/cancel", h.Cancel)
}

func (h *Handler) Record(c *gin.Context) {
	var req CreateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.RecordAttendance(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		c.Header("Location", "/frequencias/"+res.Frequencia.ID)
	}
	c.JSON(status, res)
}

func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) Delete(c *gin.Context) {
	var req DeleteAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.DeleteAttendance(c.Request.Context(), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListFollowUps(c *gin.Context) {
	res, err := h.svc.ListFollowUps(c.Request.Context(), filterFromQuery(c))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) Resolve(c *gin.Context) {
	var req ResolveFollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.ResolveFollowUp(c.Request.Context(), c.Param("buscativa_ulid"), req)
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Cancel(c *gin.Context) {
	res, err := h.svc.CancelFollowUp(c.Request.Context(), c.Param("buscativa_ulid"))
	if err != nil {
		c.JSON(ToHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- helpers ----------

func filterFromQuery(c *gin.Context) ListFilter {
	var f ListFilter
	if v := c.Query("turma"); v != "" {
		f.Turma = &v
	}
	if v := c.Query("semana_inicio"); v != "" {
		f.WeekStart = &v
	}
	if v := c.Query("status"); v != "" {
		st := Status(v)
		f.Status = &st
	}
	return f
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorBody(code Code, msg string) errorDTO {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

func errorFromErr(err error) errorDTO {
	var de *DomainError
	if errors.As(err, &de) {
		return errorBody(de.Code, de.Message)
	}
	return errorBody(CodePersistence, err.Error())
}
