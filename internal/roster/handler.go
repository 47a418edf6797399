package roster

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// GET /turmas — distinct class labels for the panel filters
	r.GET("/turmas", h.Turmas)
	// GET /alunos?turma= — active students
	r.GET("/alunos", h.Students)
}

func (h *Handler) Turmas(c *gin.Context) {
	turmas, err := h.svc.Turmas(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": turmas})
}

func (h *Handler) Students(c *gin.Context) {
	var turma *string
	if v := c.Query("turma"); v != "" {
		turma = &v
	}
	students, err := h.svc.Students(c.Request.Context(), turma)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": students})
}
