package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /auth/login  — shared password in, bearer token out
	r.POST("/auth/login", h.Login)
	// GET /auth/status  — is the presented token still good?
	r.GET("/auth/status", h.Status)
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	token, err := h.svc.Login(req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "senha incorreta"})
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: token})
}

func (h *Handler) Status(c *gin.Context) {
	ok := false
	if hdr := c.GetHeader("Authorization"); hdr != "" {
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			ok = h.svc.Check(strings.TrimSpace(parts[1]))
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "freq_auth": ok})
}
