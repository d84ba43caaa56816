package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tuneshare/internal/config"
	"tuneshare/internal/imtypes"
)

// LocalStorageService 实现了 imtypes.StorageService 接口，用于保存用户头像。
type LocalStorageService struct {
	basePath string // 本地存储的基础路径，例如 "./uploads"
	baseURL  string // 文件访问 URL 前缀，例如 "/uploads"
}

// NewLocalStorageService 创建一个新的 LocalStorageService 实例。
func NewLocalStorageService(cfg config.StorageConfig) (imtypes.StorageService, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("创建本地存储目录失败 '%s': %w", cfg.LocalPath, err)
	}
	return &LocalStorageService{
		basePath: cfg.LocalPath,
		baseURL:  cfg.BaseURL,
	}, nil
}

// UploadFile 将文件保存到本地文件系统，文件名使用 UUID，保留原始扩展名。
func (s *LocalStorageService) UploadFile(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*imtypes.FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		extensions, _ := mime.ExtensionsByType(mimeType)
		if len(extensions) > 0 {
			ext = extensions[0]
		}
	}
	uniqueFileName := uuid.New().String() + ext
	dstPath := filepath.Join(s.basePath, uniqueFileName)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("创建目标文件失败 '%s': %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("写入文件失败: %w", err)
	}
	if fileSize >= 0 && written != fileSize {
		os.Remove(dstPath)
		return nil, fmt.Errorf("文件大小不匹配: 预期 %d, 实际写入 %d", fileSize, written)
	}

	logrus.WithFields(logrus.Fields{
		"path": dstPath,
		"size": written,
	}).Debug("stored uploaded file")

	return &imtypes.FileInfo{
		URL:      strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(uniqueFileName),
		Path:     dstPath,
		Size:     written,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}

// DeleteFile 删除本地文件。只允许删除 basePath 下的文件。
func (s *LocalStorageService) DeleteFile(ctx context.Context, pathOrIdentifier string) error {
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return err
	}
	target, err := filepath.Abs(pathOrIdentifier)
	if err != nil {
		return err
	}
	if filepath.Dir(target) != base {
		return fmt.Errorf("refusing to delete %q outside storage root", pathOrIdentifier)
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
