package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"cvbuilder/internal/access"
	"cvbuilder/internal/cv"
	"cvbuilder/internal/entitlement"
	"cvbuilder/internal/metrics"
	"cvbuilder/internal/render"
	"cvbuilder/internal/tasks"
)

// DefaultLinkTTL 是 PDF 下载链接的有效期。
const DefaultLinkTTL = 15 * time.Minute

// Documents 是服务所需的文档仓储，由 *cv.Repository 实现。
type Documents interface {
	Create(ctx context.Context, doc cv.Document) (cv.Document, error)
	Update(ctx context.Context, doc cv.Document) (cv.Document, error)
	Get(ctx context.Context, id string) (cv.Document, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]cv.Document, error)
	Delete(ctx context.Context, id string) error
	PDFObjectKey(ctx context.Context, id string) (string, error)
}

// Entitlements 由 *entitlement.Engine 实现。
type Entitlements interface {
	Check(ctx context.Context, userID uint) entitlement.Check
}

// AccessResolver 由 *access.Policy 实现。
type AccessResolver interface {
	Resolve(ctx context.Context, userID uint, docID string) (access.Access, error)
}

// Enqueuer 由 *asynq.Client 实现。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Presigner 由 *storage.Client 实现。
type Presigner interface {
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
}

// Draft 是尚未保存的新文档。Preview 表示保存将被拒绝，前端只能预览。
type Draft struct {
	Document cv.Document `json:"cv"`
	Preview  bool        `json:"preview"`
}

// CVService 编排权益检查、访问策略与持久化。
type CVService struct {
	docs     Documents
	ent      Entitlements
	policy   AccessResolver
	queue    Enqueuer
	links    Presigner
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	maxRetry int
	linkTTL  time.Duration
}

// Option 配置 CVService。
type Option func(*CVService)

func WithClock(now func() time.Time) Option {
	return func(s *CVService) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *CVService) { s.newID = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *CVService) { s.logger = logger }
}

// WithTaskMaxRetry 设置 PDF 任务的最大重试次数。
func WithTaskMaxRetry(n int) Option {
	return func(s *CVService) { s.maxRetry = n }
}

func WithLinkTTL(ttl time.Duration) Option {
	return func(s *CVService) {
		if ttl > 0 {
			s.linkTTL = ttl
		}
	}
}

// NewCVService 构造服务。queue 与 links 可为 nil，对应操作会返回错误。
func NewCVService(docs Documents, ent Entitlements, policy AccessResolver, queue Enqueuer, links Presigner, opts ...Option) *CVService {
	s := &CVService{
		docs:     docs,
		ent:      ent,
		policy:   policy,
		queue:    queue,
		links:    links,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		maxRetry: 5,
		linkTTL:  DefaultLinkTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entitlement 返回用户当前的权益。
func (s *CVService) Entitlement(ctx context.Context, userID uint) entitlement.Check {
	return s.ent.Check(ctx, userID)
}

// List 返回用户的文档，最近更新在前。
func (s *CVService) List(ctx context.Context, userID uint) ([]cv.Document, error) {
	return s.docs.ListByOwner(ctx, userID)
}

// NewDraft 返回一份默认空文档。
func (s *CVService) NewDraft(ctx context.Context, userID uint) (Draft, error) {
	check := s.ent.Check(ctx, userID)
	if !check.CanCreateCV {
		return Draft{}, s.deny(userID, entitlement.ActionCreate)
	}
	return Draft{Document: cv.NewEditor().Document(), Preview: !check.CanSaveCV}, nil
}

// Create 首次保存文档。
func (s *CVService) Create(ctx context.Context, userID uint, doc cv.Document) (cv.Document, error) {
	if err := doc.Validate(); err != nil {
		return cv.Document{}, err
	}
	if !s.ent.Check(ctx, userID).CanSaveCV {
		return cv.Document{}, s.deny(userID, entitlement.ActionSave)
	}
	return s.docs.Create(ctx, cv.Stamp(doc, s.newID(), userID, s.now()))
}

// Get 返回文档与调用者对它的权限。
func (s *CVService) Get(ctx context.Context, userID uint, id string) (cv.Document, access.Access, error) {
	doc, err := s.owned(ctx, userID, id)
	if err != nil {
		return cv.Document{}, access.None(), err
	}
	acc, err := s.policy.Resolve(ctx, userID, id)
	if err != nil {
		return cv.Document{}, access.None(), err
	}
	return doc, acc, nil
}

// Update 覆盖可变字段。id、归属与创建时间保持存储中的值。
func (s *CVService) Update(ctx context.Context, userID uint, id string, doc cv.Document) (cv.Document, error) {
	current, err := s.owned(ctx, userID, id)
	if err != nil {
		return cv.Document{}, err
	}
	if err := doc.Validate(); err != nil {
		return cv.Document{}, err
	}
	if err := s.require(ctx, userID, id, entitlement.ActionSave); err != nil {
		return cv.Document{}, err
	}

	doc.ID = current.ID
	doc.OwnerID = current.OwnerID
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = s.now().UTC()
	return s.docs.Update(ctx, doc)
}

// Delete 物理删除文档。
func (s *CVService) Delete(ctx context.Context, userID uint, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.docs.Delete(ctx, id)
}

// Duplicate 复制文档：新 id、新子记录 id、名称追加 " (copy)"。
func (s *CVService) Duplicate(ctx context.Context, userID uint, id string) (cv.Document, error) {
	src, err := s.owned(ctx, userID, id)
	if err != nil {
		return cv.Document{}, err
	}
	if !s.ent.Check(ctx, userID).CanDuplicate {
		return cv.Document{}, s.deny(userID, entitlement.ActionDuplicate)
	}

	ed := cv.NewEditor(cv.WithIDGenerator(s.newID))
	ed.Load(src)
	ed.Detach()
	ed.ReassignEntryIDs()
	ed.SetName(src.Name + " (copy)")

	return s.docs.Create(ctx, cv.Stamp(ed.Document(), s.newID(), userID, s.now()))
}

// Access 返回调用者对文档的权限。未知文档返回全 false。
func (s *CVService) Access(ctx context.Context, userID uint, id string) (access.Access, error) {
	if !validID(id) {
		return access.None(), nil
	}
	return s.policy.Resolve(ctx, userID, id)
}

// ExportHTML 渲染调用者当前的文档内容。已保存文档按访问策略判断，未保存文档按套餐判断。
func (s *CVService) ExportHTML(ctx context.Context, userID uint, doc cv.Document) ([]byte, error) {
	if doc.Saved() {
		if _, err := s.owned(ctx, userID, doc.ID); err != nil {
			return nil, err
		}
		if err := s.require(ctx, userID, doc.ID, entitlement.ActionDownload); err != nil {
			return nil, err
		}
	} else if !s.ent.Check(ctx, userID).CanDownloadCV {
		return nil, s.deny(userID, entitlement.ActionDownload)
	}
	return render.Render(doc, doc.TemplateID, doc.ThemeColor)
}

// RequestPDF 投递 PDF 生成任务，返回任务 id。
func (s *CVService) RequestPDF(ctx context.Context, userID uint, id, correlationID string) (string, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return "", err
	}
	if err := s.require(ctx, userID, id, entitlement.ActionDownload); err != nil {
		return "", err
	}
	if s.queue == nil {
		return "", fmt.Errorf("request pdf: task queue not configured")
	}

	task, err := tasks.NewCVPDFGenerateTask(id, userID, correlationID, s.maxRetry)
	if err != nil {
		return "", fmt.Errorf("build pdf task: %w", err)
	}
	info, err := s.queue.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue pdf task: %w", err)
	}
	s.logger.Info("pdf task enqueued",
		slog.String("cv_id", id),
		slog.String("task_id", info.ID),
		slog.String("correlation_id", correlationID),
	)
	return info.ID, nil
}

// DownloadLink 返回最近生成 PDF 的限时链接。
func (s *CVService) DownloadLink(ctx context.Context, userID uint, id string) (string, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return "", err
	}
	if err := s.require(ctx, userID, id, entitlement.ActionDownload); err != nil {
		return "", err
	}
	key, err := s.docs.PDFObjectKey(ctx, id)
	if err != nil {
		return "", err
	}
	if s.links == nil {
		return "", fmt.Errorf("download link: object storage not configured")
	}
	return s.links.GeneratePresignedURL(ctx, key, s.linkTTL)
}

func (s *CVService) owned(ctx context.Context, userID uint, id string) (cv.Document, error) {
	if !validID(id) {
		return cv.Document{}, ErrNotFound
	}
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return cv.Document{}, err
	}
	if doc.OwnerID != userID {
		return cv.Document{}, ErrNotOwner
	}
	return doc, nil
}

// require 按文档在创建顺序中的位置判断保存或下载权限。
func (s *CVService) require(ctx context.Context, userID uint, id string, action entitlement.Action) error {
	acc, err := s.policy.Resolve(ctx, userID, id)
	if err != nil {
		return err
	}
	allowed := acc.CanEdit
	switch action {
	case entitlement.ActionSave:
		allowed = acc.CanSave
	case entitlement.ActionDownload:
		allowed = acc.CanDownload
	}
	if !allowed {
		return s.deny(userID, action)
	}
	return nil
}

func (s *CVService) deny(userID uint, action entitlement.Action) error {
	metrics.ObserveEntitlementDenied(string(action))
	s.logger.Info("entitlement denied",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("action", string(action)),
	)
	return &EntitlementError{Action: action}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
