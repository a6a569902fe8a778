package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"cvbuilder/internal/database"
)

// Store 基于 GORM 的订阅存储。
type Store struct {
	db *gorm.DB
}

// NewStore 构造 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Active 返回 now 时刻生效的最新一条 active 订阅；没有则返回 nil, nil。
func (s *Store) Active(ctx context.Context, userID uint, now time.Time) (*Subscription, error) {
	var rec database.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(StatusActive)).
		Where("(end_date IS NULL OR end_date > ?)", now.UTC()).
		Order("created_at DESC").
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active subscription: %w", err)
	}
	sub := fromRecord(rec)
	return &sub, nil
}

// Upsert 取消该用户所有 active 订阅后插入新订阅。
// 两条语句之间没有事务包裹：中途失败会留下零条 active 记录，读取方按 free 处理。
func (s *Store) Upsert(ctx context.Context, userID uint, plan PlanType, endDate *time.Time, now time.Time) (Subscription, error) {
	if !plan.Valid() {
		return Subscription{}, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	now = now.UTC()
	if endDate != nil {
		utc := endDate.UTC()
		endDate = &utc
	}

	err := s.db.WithContext(ctx).
		Model(&database.Subscription{}).
		Where("user_id = ? AND status = ?", userID, string(StatusActive)).
		Updates(map[string]any{"status": string(StatusCancelled), "updated_at": now}).Error
	if err != nil {
		return Subscription{}, fmt.Errorf("cancel active subscriptions: %w", err)
	}

	rec := database.Subscription{
		UserID:    userID,
		PlanType:  string(plan),
		Status:    string(StatusActive),
		StartDate: now,
		EndDate:   endDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return Subscription{}, fmt.Errorf("insert subscription: %w", err)
	}
	return fromRecord(rec), nil
}

// ListByUser 返回用户的全部订阅，最新在前。
func (s *Store) ListByUser(ctx context.Context, userID uint) ([]Subscription, error) {
	var recs []database.Subscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]Subscription, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// ExpireLapsed 把已过期但仍为 active 的订阅标记为 expired，返回受影响行数。
func (s *Store) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&database.Subscription{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date <= ?", string(StatusActive), now.UTC()).
		Updates(map[string]any{"status": string(StatusExpired), "updated_at": now.UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func fromRecord(rec database.Subscription) Subscription {
	return Subscription{
		ID:        rec.ID,
		UserID:    rec.UserID,
		PlanType:  PlanType(rec.PlanType),
		Status:    Status(rec.Status),
		StartDate: rec.StartDate,
		EndDate:   rec.EndDate,
	}
}
