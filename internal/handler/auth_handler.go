package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"Showtimes_Sync/internal/pkg"
)

// AuthHandler 运维账号登录；只有一个账号，密码以 bcrypt 哈希保存在配置中
type AuthHandler struct {
	operator     string
	passwordHash []byte
	tokens       *pkg.TokenIssuer
}

type LoginReq struct {
	Operator string `json:"operator" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func NewAuthHandler(operator, passwordHash string, tokens *pkg.TokenIssuer) *AuthHandler {
	return &AuthHandler{operator: operator, passwordHash: []byte(passwordHash), tokens: tokens}
}

// Login 登录接口
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	nameOK := subtle.ConstantTimeCompare([]byte(req.Operator), []byte(h.operator)) == 1
	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil || !nameOK {
		c.JSON(http.StatusUnauthorized, gin.H{"msg": "invalid operator or password"})
		return
	}
	pair, err := h.tokens.GeneratePair(h.operator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// Refresh 用 refresh token 换新的令牌对
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	pair, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		msg := "invalid refresh token"
		if errors.Is(err, pkg.ErrRefreshExpired) {
			msg = "refresh token expired"
		}
		c.JSON(http.StatusUnauthorized, gin.H{"msg": msg})
		return
	}
	c.JSON(http.StatusOK, pair)
}
