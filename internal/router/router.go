package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/handler"
	"Showtimes_Sync/internal/middleware"
	"Showtimes_Sync/internal/pkg"
)

type Deps struct {
	Auth   *handler.AuthHandler
	Ops    *handler.OpsHandler
	Tokens *pkg.TokenIssuer
	Log    *zap.Logger
}

func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(d.Log))

	// 登录相关接口
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/login", d.Auth.Login)
		authGroup.POST("/refresh", d.Auth.Refresh)
	}

	ops := r.Group("/api/ops")
	ops.Use(middleware.OperatorAuth(d.Tokens))
	{
		// 社区
		ops.POST("/communities", d.Ops.Provision)
		ops.GET("/communities/:id", d.Ops.Get)
		ops.DELETE("/communities/:id", d.Ops.Deprovision)
		ops.GET("/communities/:id/resolve", d.Ops.Resolve)
		ops.GET("/communities/:id/status", d.Ops.Status)

		// 重推
		ops.GET("/resync", d.Ops.ResyncStatus)
		ops.POST("/resync/flush", d.Ops.ResyncFlush)

		// 快照
		ops.GET("/snapshot", d.Ops.Snapshot)
		ops.POST("/restore", d.Ops.Restore)

		// 管理员名单
		ops.GET("/admins", d.Ops.ListAdmins)
		ops.POST("/admins", d.Ops.AddAdmin)
		ops.DELETE("/admins/:id", d.Ops.RemoveAdmin)
	}

	return r
}
