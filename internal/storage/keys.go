package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	userAssetsPrefix   = "user-assets"
	generatedCVsPrefix = "generated-cvs"
	maxKeyLength       = 200
)

// MaxPhotoBytes 是头像上传与内联的大小上限。
const MaxPhotoBytes = 5 << 20

// PhotoExtensions 是允许作为头像上传的扩展名及其 Content-Type。
var PhotoExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// UserAssetPrefix 返回用户资产目录。
func UserAssetPrefix(userID uint) string {
	return fmt.Sprintf("%s/%d/", userAssetsPrefix, userID)
}

// PhotoKey 为新上传的头像生成对象 key，ext 需带点号。
func PhotoKey(userID uint, ext string) string {
	return UserAssetPrefix(userID) + uuid.NewString() + strings.ToLower(ext)
}

// PDFKey 为新生成的 PDF 生成对象 key。
func PDFKey(userID uint) string {
	return fmt.Sprintf("%s/%d/%s.pdf", generatedCVsPrefix, userID, uuid.NewString())
}

// IsUserAssetKey 校验 key 属于该用户且是允许的图片类型，用于拒绝引用他人对象或路径穿越。
func IsUserAssetKey(userID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) || len(key) > maxKeyLength {
		return false
	}
	if !strings.HasPrefix(key, UserAssetPrefix(userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	_, ok := PhotoExtensions[photoExt(key)]
	return ok
}

// ContentTypeForKey 按扩展名推断图片类型，未知返回空串。
func ContentTypeForKey(key string) string {
	return PhotoExtensions[photoExt(key)]
}

func photoExt(key string) string {
	lower := strings.ToLower(strings.TrimSpace(key))
	if i := strings.LastIndex(lower, "."); i >= 0 {
		return lower[i:]
	}
	return ""
}
