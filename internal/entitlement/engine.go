package entitlement

import (
	"context"
	"log/slog"
	"time"

	"cvbuilder/internal/metrics"
	"cvbuilder/internal/subscription"
)

// SubscriptionReader 返回 now 时刻生效的订阅，没有则为 nil。
type SubscriptionReader interface {
	Active(ctx context.Context, userID uint, now time.Time) (*subscription.Subscription, error)
}

// DocumentCounter 统计用户拥有的 CV 数量。
type DocumentCounter interface {
	CountByOwner(ctx context.Context, ownerID uint) (int, error)
}

// Engine 读取订阅与数量并计算 Check。读取失败不会返回错误。
type Engine struct {
	subs    SubscriptionReader
	counter DocumentCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine 构造 Engine。
func NewEngine(subs SubscriptionReader, counter DocumentCounter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{subs: subs, counter: counter, logger: logger, now: time.Now}
}

// WithClock 替换时钟，测试使用。
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Check 返回用户当前权益。任何读取失败都记录 WARN 并返回 UnknownUserDefault。
func (e *Engine) Check(ctx context.Context, userID uint) Check {
	now := e.now()

	sub, err := e.subs.Active(ctx, userID, now)
	if err != nil {
		return e.failOpen(userID, "subscription", err)
	}

	plan := subscription.PlanFree
	status := subscription.StatusActive
	var endDate *time.Time
	if sub != nil {
		if sub.PlanType.Valid() {
			plan = sub.PlanType
		}
		status = sub.Status
		endDate = sub.EndDate
	}

	count, err := e.counter.CountByOwner(ctx, userID)
	if err != nil {
		return e.failOpen(userID, "count", err)
	}

	return Compute(plan, status, endDate, count)
}

func (e *Engine) failOpen(userID uint, source string, err error) Check {
	metrics.ObserveEntitlementFailOpen(source)
	e.logger.Warn("entitlement read failed, using default",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("source", source),
		slog.Any("error", err),
	)
	return UnknownUserDefault()
}
