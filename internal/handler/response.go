package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/resolver"
	"Showtimes_Sync/internal/service"
)

// writeError 把服务层错误映射为 HTTP 状态码，NotFound 一类不记错误日志
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var amb *resolver.AmbiguousError
	switch {
	case errors.As(err, &amb):
		c.JSON(http.StatusConflict, gin.H{"msg": "multiple titles match", "candidates": amb.Candidates})
	case errors.Is(err, service.ErrNotProvisioned):
		c.JSON(http.StatusNotFound, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrAlreadyProvisioned), errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"msg": err.Error()})
	case errors.Is(err, service.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
	}
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid " + name})
		return 0, false
	}
	return id, true
}
