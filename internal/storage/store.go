// Package storage 上传文件的存储
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"autorbi/internal/common"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrFileTooLarge 上传文件超过大小限制
var ErrFileTooLarge = common.NewBusinessError(common.CodeFileTooLarge, "文件超过大小限制")

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store 基于 afero 的文件存储，生产使用本地目录，测试使用内存文件系统
type Store struct {
	fs      afero.Fs
	maxSize int64
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore 创建存储
func NewStore(fs afero.Fs, maxSize int64, logger *zap.Logger) *Store {
	return &Store{fs: fs, maxSize: maxSize, logger: logger, now: time.Now}
}

// NewLocalStore 以 basePath 为根目录的本地存储
func NewLocalStore(basePath string, maxSize int64, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return NewStore(afero.NewBasePathFs(afero.NewOsFs(), basePath), maxSize, logger), nil
}

// Save 保存上传内容，返回存储 key 与写入字节数
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	key := s.keyFor(name)
	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", 0, fmt.Errorf("创建目录失败: %w", err)
	}

	f, err := s.fs.Create(key)
	if err != nil {
		return "", 0, fmt.Errorf("创建文件失败: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, &ctxReader{ctx: ctx, r: src})
	closeErr := f.Close()
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrFileTooLarge.Withf("上限 %d 字节", s.maxSize)
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(key)
		return "", 0, err
	}

	s.logger.Debug("文件已保存", zap.String("key", key), zap.Int64("size", n))
	return key, n, nil
}

// ReadAll 读取整个文件
func (s *Store) ReadAll(key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, key)
	if err != nil {
		return nil, fmt.Errorf("读取文件 %s 失败: %w", key, err)
	}
	return data, nil
}

// Remove 删除文件，不存在时忽略
func (s *Store) Remove(key string) error {
	if err := s.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文件 %s 失败: %w", key, err)
	}
	return nil
}

func (s *Store) keyFor(name string) string {
	now := s.now().UTC()
	return path.Join("uploads", now.Format("2006"), now.Format("01"), uuid.NewString()+"-"+SanitizeName(name))
}

// SanitizeName 去掉路径并替换文件名中的不安全字符
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "upload"
	}
	return name
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
