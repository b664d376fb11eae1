package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/vending-machine/internal/service"
)

// AuthHandler 认证接口
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler 创建认证接口
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login 管理端登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "缺少密码")
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"token": token})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword 修改管理密码
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failParam(c, "参数不完整")
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
