package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"cvbuilder/internal/database"
	"cvbuilder/internal/entitlement"
	"cvbuilder/internal/subscription"
)

// EntitlementChecker 由 *service.CVService 实现。
type EntitlementChecker interface {
	Entitlement(ctx context.Context, userID uint) entitlement.Check
}

// SubscriptionHandler 暴露套餐查询与管理员授权接口。
type SubscriptionHandler struct {
	db      *gorm.DB
	ent     EntitlementChecker
	store   *subscription.Store
	logger  *slog.Logger
	nowFunc func() time.Time
}

func NewSubscriptionHandler(db *gorm.DB, ent EntitlementChecker, store *subscription.Store, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{db: db, ent: ent, store: store, logger: logger, nowFunc: time.Now}
}

// GET /v1/user/subscription
func (h *SubscriptionHandler) Current(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	c.JSON(http.StatusOK, h.ent.Entitlement(c.Request.Context(), userID))
}

type historyItem struct {
	subscription.Subscription
	Current bool `json:"current"`
}

// GET /v1/user/subscription/history
func (h *SubscriptionHandler) History(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	subs, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	now := h.nowFunc()
	items := make([]historyItem, 0, len(subs))
	for _, sub := range subs {
		items = append(items, historyItem{Subscription: sub, Current: sub.CurrentAt(now)})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type grantRequest struct {
	UserID   uint       `json:"user_id" binding:"required,gt=0"`
	PlanType string     `json:"plan_type" binding:"required,plantype"`
	EndDate  *time.Time `json:"end_date"`
}

// PATCH /v1/admin/subscriptions
// 取消用户当前 active 订阅并写入新订阅。
func (h *SubscriptionHandler) Grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	now := h.nowFunc()
	if req.EndDate != nil && !req.EndDate.After(now) {
		BadRequest(c, "end_date must be in the future")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, req.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "user not found")
			return
		}
		RespondError(c, err)
		return
	}

	sub, err := h.store.Upsert(ctx, user.ID, subscription.PlanType(req.PlanType), req.EndDate, now)
	if err != nil {
		RespondError(c, err)
		return
	}

	adminID, _ := userIDFromContext(c)
	h.logger.Info("subscription granted",
		slog.Uint64("admin_id", uint64(adminID)),
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("plan_type", string(sub.PlanType)),
	)
	c.JSON(http.StatusOK, sub)
}

type adminUserItem struct {
	ID        uint                  `json:"id"`
	Username  string                `json:"username"`
	IsAdmin   bool                  `json:"is_admin"`
	CreatedAt time.Time             `json:"created_at"`
	PlanType  subscription.PlanType `json:"plan_type"`
	EndDate   *time.Time            `json:"end_date,omitempty"`
}

// GET /v1/admin/users
func (h *SubscriptionHandler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	var users []database.User
	if err := h.db.WithContext(ctx).Order("id").Limit(500).Find(&users).Error; err != nil {
		RespondError(c, err)
		return
	}

	now := h.nowFunc()
	items := make([]adminUserItem, 0, len(users))
	for _, u := range users {
		item := adminUserItem{
			ID:        u.ID,
			Username:  u.Username,
			IsAdmin:   u.IsAdmin,
			CreatedAt: u.CreatedAt,
			PlanType:  subscription.PlanFree,
		}
		sub, err := h.store.Active(ctx, u.ID, now)
		if err != nil {
			RespondError(c, err)
			return
		}
		if sub != nil {
			item.PlanType = sub.PlanType
			item.EndDate = sub.EndDate
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}
