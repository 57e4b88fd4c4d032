package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"Showtimes_Sync/internal/middleware"
	"Showtimes_Sync/internal/model"
	"Showtimes_Sync/internal/service"
)

// OpsHandler 运维接口：开通/注销社区、查看与触发重推、快照导入导出、管理员名单
type OpsHandler struct {
	communities *service.CommunityService
	projects    *service.ProjectService
	reconciler  *service.Reconciler
	log         *zap.Logger
}

type ProvisionReq struct {
	CommunityID uint64 `json:"community_id" binding:"required"`
	OwnerID     uint64 `json:"owner_id" binding:"required"`
}

type AdminReq struct {
	AdminID uint64 `json:"admin_id" binding:"required"`
}

func NewOpsHandler(communities *service.CommunityService, projects *service.ProjectService, reconciler *service.Reconciler, log *zap.Logger) *OpsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OpsHandler{communities: communities, projects: projects, reconciler: reconciler, log: log}
}

func (h *OpsHandler) Provision(c *gin.Context) {
	var req ProvisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	rec, err := h.communities.Provision(c.Request.Context(), req.CommunityID, req.OwnerID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *OpsHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	rec, err := h.communities.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *OpsHandler) Deprovision(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.communities.Deprovision(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

// Resolve GET /communities/:id/resolve?q=
func (h *OpsHandler) Resolve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	matches, err := h.projects.Resolve(c.Request.Context(), id, c.Query("q"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// Status GET /communities/:id/status?q=，多个匹配时返回 409 和候选列表
func (h *OpsHandler) Status(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	st, err := h.projects.Status(c.Request.Context(), id, c.Query("q"), nil)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *OpsHandler) ResyncStatus(c *gin.Context) {
	entries, err := h.reconciler.Pending(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": entries})
}

// ResyncFlush 忽略退避立即重推
func (h *OpsHandler) ResyncFlush(c *gin.Context) {
	res, err := h.reconciler.Flush(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushed": res.Pushed, "failed": res.Failed, "dropped": res.Dropped})
}

func (h *OpsHandler) Snapshot(c *gin.Context) {
	snap, err := h.communities.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *OpsHandler) Restore(c *gin.Context) {
	var snap model.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid snapshot"})
		return
	}
	if err := h.communities.Restore(c.Request.Context(), &snap); err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Info("snapshot restored via api", zap.String("operator", c.GetString(middleware.ContextOperatorKey)))
	c.JSON(http.StatusOK, gin.H{"msg": "ok", "communities": len(snap.Communities)})
}

func (h *OpsHandler) ListAdmins(c *gin.Context) {
	admins, err := h.communities.ListAdmins(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

func (h *OpsHandler) AddAdmin(c *gin.Context) {
	var req AdminReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	if err := h.communities.AddAdmin(c.Request.Context(), req.AdminID); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

func (h *OpsHandler) RemoveAdmin(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.communities.RemoveAdmin(c.Request.Context(), id); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}
