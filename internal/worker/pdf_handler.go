package worker

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"

	"cvbuilder/internal/cv"
	"cvbuilder/internal/errcode"
	"cvbuilder/internal/pdf"
	"cvbuilder/internal/persistence"
	"cvbuilder/internal/render"
	"cvbuilder/internal/storage"
	"cvbuilder/internal/tasks"
)

// Documents 由 *cv.Repository 实现。
type Documents interface {
	Get(ctx context.Context, id string) (cv.Document, error)
	SetPDFObjectKey(ctx context.Context, id, key string) error
}

// Objects 由 *storage.Client 实现。
type Objects interface {
	ReadObject(ctx context.Context, objectKey string, maxBytes int64) ([]byte, string, error)
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// PDFTaskHandler 负责消费 CV PDF 生成任务。
type PDFTaskHandler struct {
	docs      Documents
	objects   Objects
	generator pdf.Generator
	publisher Publisher
	logger    *slog.Logger
}

// NewPDFTaskHandler 创建任务处理器。
func NewPDFTaskHandler(docs Documents, objects Objects, generator pdf.Generator, publisher Publisher, logger *slog.Logger) *PDFTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTaskHandler{
		docs:      docs,
		objects:   objects,
		generator: generator,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *PDFTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParseCVPDFGeneratePayload(t.Payload())
	if err != nil {
		h.logger.Error("invalid task payload", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("cv_id", payload.CVID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting cv pdf generation")

	doc, err := h.docs.Get(ctx, payload.CVID)
	if err != nil {
		if errors.Is(err, cv.ErrNotFound) {
			log.Warn("cv not found, skipping task")
			return nil
		}
		log.Error("load cv failed", slog.Any("error", err))
		return err
	}
	if doc.OwnerID != payload.UserID {
		log.Error("task user does not own cv", slog.Uint64("owner_id", uint64(doc.OwnerID)))
		return fmt.Errorf("cv %s not owned by user %d: %w", doc.ID, payload.UserID, asynq.SkipRetry)
	}

	notify := PDFGenerationNotifyMessage{
		Status:        StatusCompleted,
		CVID:          doc.ID,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}

	defer func() {
		if retErr == nil {
			return
		}
		final := isFinalAsynqAttempt(ctx) || errors.Is(retErr, asynq.SkipRetry)
		if !final {
			return
		}
		msg := notify
		msg.Status = StatusError
		msg.ErrorCode = errcode.SystemError
		msg.ErrorMessage = strings.TrimSpace(retErr.Error())
		if persistence.IsSchemaMismatch(retErr) || isSchemaError(retErr) {
			msg.ErrorCode = errcode.SchemaMismatch
		}
		if err := publishNotify(ctx, h.publisher, payload.UserID, msg); err != nil {
			log.Error("publish pdf error notification failed", slog.Any("error", err))
		}
	}()

	var opts []render.Option
	if doc.PersonalInfo.ShowPhoto && doc.PersonalInfo.Photo != "" {
		uri, err := h.photoDataURI(ctx, payload.UserID, doc.PersonalInfo.Photo)
		switch {
		case err == nil:
			opts = append(opts, render.WithPhoto(uri))
		case errors.Is(err, errPhotoMissing):
			notify.ErrorCode = errcode.ResourceMissing
			notify.ErrorMessage = "photo missing or invalid, generated without it"
			notify.MissingKeys = []string{doc.PersonalInfo.Photo}
			log.Warn("cv photo unavailable", slog.String("key", doc.PersonalInfo.Photo), slog.Any("error", err))
		default:
			log.Error("read cv photo failed", slog.Any("error", err))
			return err
		}
	}

	html, err := render.Render(doc, doc.TemplateID, doc.ThemeColor, opts...)
	if err != nil {
		log.Error("render cv failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	pdfBytes, err := h.generator.FromHTML(ctx, html)
	if err != nil {
		log.Error("generate pdf failed", slog.Any("error", err))
		return err
	}

	objectName := storage.PDFKey(payload.UserID)
	if _, err := h.objects.UploadFile(ctx, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload pdf to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.docs.SetPDFObjectKey(ctx, doc.ID, objectName); err != nil {
		if isSchemaError(err) || persistence.IsSchemaMismatch(err) {
			log.Error("pdf_object_key column missing, run migrations", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		log.Error("record pdf key failed", slog.Any("error", err))
		return err
	}

	if err := publishNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("cv pdf generation completed", slog.String("object_key", objectName))
	return nil
}

var errPhotoMissing = errors.New("photo missing")

func (h *PDFTaskHandler) photoDataURI(ctx context.Context, userID uint, key string) (string, error) {
	if !storage.IsUserAssetKey(userID, key) {
		return "", fmt.Errorf("%w: key %q rejected", errPhotoMissing, key)
	}
	data, contentType, err := h.objects.ReadObject(ctx, key, storage.MaxPhotoBytes)
	if err != nil {
		if storage.IsNoSuchKey(err) || errors.Is(err, storage.ErrObjectTooLarge) {
			return "", fmt.Errorf("%w: %w", errPhotoMissing, err)
		}
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = storage.ContentTypeForKey(key)
	}
	if contentType == "" {
		return "", fmt.Errorf("%w: unsupported content type", errPhotoMissing)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func isSchemaError(err error) bool {
	_, ok := persistence.AsSchemaError(err)
	return ok
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
