package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"

	"cvbuilder/internal/storage"
)

// AssetStorage 由 *storage.Client 实现。
type AssetStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// ErrInfected 表示上传内容未通过病毒扫描。
var ErrInfected = errors.New("malicious file detected")

// Scanner 扫描上传内容。
type Scanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 扫描上传内容。
type ClamdScanner struct {
	addr string
}

// NewClamdScanner 返回 clamd 扫描器，addr 为空时返回 nil 表示不扫描。
func NewClamdScanner(addr string) Scanner {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	return &ClamdScanner{addr: addr}
}

func (s *ClamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := clamd.NewClamd(s.addr).ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamd scan: %w", err)
	}
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			return fmt.Errorf("%w: %s", ErrInfected, result.Description)
		default:
			return fmt.Errorf("clamd scan: %s %s", result.Status, result.Description)
		}
	}
	return nil
}

// AssetHandler 负责头像上传与访问。
type AssetHandler struct {
	storage AssetStorage
	scanner Scanner
	logger  *slog.Logger
	linkTTL time.Duration
}

// NewAssetHandler 返回 AssetHandler 实例。scanner 可以为 nil。
func NewAssetHandler(store AssetStorage, scanner Scanner, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{
		storage: store,
		scanner: scanner,
		logger:  logger,
		linkTTL: 15 * time.Minute,
	}
}

// UploadPhoto 处理头像上传：校验扩展名、嗅探内容类型并在上传前扫描。
// POST /v1/assets/photo
func (h *AssetHandler) UploadPhoto(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 || file.Size > storage.MaxPhotoBytes {
		Error(c, http.StatusRequestEntityTooLarge, "photo must be at most 5MB")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	expected, ok := storage.PhotoExtensions[ext]
	if !ok {
		BadRequest(c, "unsupported image type")
		return
	}

	src, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, storage.MaxPhotoBytes+1))
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if int64(len(data)) > storage.MaxPhotoBytes {
		Error(c, http.StatusRequestEntityTooLarge, "photo must be at most 5MB")
		return
	}

	// 扩展名与内容不符时拒绝
	if sniffed := http.DetectContentType(data); sniffed != expected {
		BadRequest(c, "file content does not match extension")
		return
	}

	if h.scanner != nil {
		if err := h.scanner.Scan(bytes.NewReader(data)); err != nil {
			if errors.Is(err, ErrInfected) {
				h.logger.Warn("infected upload rejected", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
				BadRequest(c, "malicious file detected")
				return
			}
			h.logger.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
	}

	ctx := c.Request.Context()
	objectKey := storage.PhotoKey(userID, ext)
	if _, err := h.storage.UploadFile(ctx, objectKey, bytes.NewReader(data), int64(len(data)), expected); err != nil {
		h.logger.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	url, err := h.storage.GeneratePresignedURL(ctx, objectKey, h.linkTTL)
	if err != nil {
		h.logger.Error("generate presigned url", slog.String("objectKey", objectKey), slog.Any("error", err))
		url = ""
	}
	c.JSON(http.StatusCreated, gin.H{"objectKey": objectKey, "url": url})
}

// ListPhotos 列出用户上传的头像。
// GET /v1/assets
func (h *AssetHandler) ListPhotos(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	ctx := c.Request.Context()
	objects, err := h.storage.ListObjects(ctx, storage.UserAssetPrefix(userID), limit)
	if err != nil {
		h.logger.Error("list assets", slog.Any("error", err))
		Internal(c, "failed to list assets")
		return
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		url, err := h.storage.GeneratePresignedURL(ctx, obj.Key, h.linkTTL)
		if err != nil {
			h.logger.Error("generate asset url", slog.String("objectKey", obj.Key), slog.Any("error", err))
			continue
		}
		items = append(items, gin.H{
			"objectKey":    obj.Key,
			"previewUrl":   url,
			"size":         obj.Size,
			"lastModified": obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetAssetURL 返回资产的临时预签名 URL。
// GET /v1/assets/view?key=
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), objectKey, h.linkTTL)
	if err != nil {
		h.logger.Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// DeletePhoto 删除用户自己的头像，对象不存在时同样返回 204。
// DELETE /v1/assets?key=
func (h *AssetHandler) DeletePhoto(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if !storage.IsUserAssetKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}
	if err := h.storage.DeleteObject(c.Request.Context(), objectKey); err != nil {
		h.logger.Error("delete asset", slog.Any("error", err))
		Internal(c, "failed to delete asset")
		return
	}
	c.Status(http.StatusNoContent)
}
