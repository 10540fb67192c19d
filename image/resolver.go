// Package image resolves character portrait references to locally stored
// files. Priority: uploaded file > downloadable URL > default placeholder.
package image

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmcompanion/api/config"
	"github.com/dmcompanion/api/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// publicPrefix is the URL path prefix under which stored files are served.
const publicPrefix = "uploads"

// Resolver stores portrait images under the configured uploads directory.
type Resolver struct {
	cfg    config.UploadsConfig
	client *http.Client
	logger *zap.Logger
}

// NewResolver creates a Resolver and ensures the uploads directory exists.
func NewResolver(cfg config.UploadsConfig, logger *zap.Logger) (*Resolver, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("image: create uploads dir: %w", err)
	}
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// DefaultPic returns the public path of the placeholder asset.
func (r *Resolver) DefaultPic() string {
	return r.cfg.DefaultPic
}

// Resolve picks the portrait path for a create or image-update request.
// An uploaded file wins over a URL; a URL that is not syntactically valid or
// fails to download falls back to the default placeholder without surfacing
// an error. Only a failed upload save is reported to the caller.
func (r *Resolver) Resolve(file *multipart.FileHeader, rawURL string) (string, error) {
	if file != nil {
		return r.SaveUpload(file)
	}
	if IsWebURL(rawURL) {
		return r.Fetch(rawURL), nil
	}
	return r.cfg.DefaultPic, nil
}

// SaveUpload stores an uploaded portrait under a timestamp-prefixed name and
// returns its public path.
func (r *Resolver) SaveUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("image: open upload: %w", err)
	}
	defer src.Close()

	name := r.stampName(filepath.Base(file.Filename))
	if err := r.writeFile(name, src); err != nil {
		return "", err
	}
	return publicPrefix + "/" + name, nil
}

// Fetch downloads the image at rawURL into the uploads directory and returns
// its public path. Any failure falls back to the default placeholder; the
// error is logged, never returned.
func (r *Resolver) Fetch(rawURL string) string {
	resp, err := r.client.Get(rawURL)
	if err != nil {
		r.logger.Warn("image download failed", zap.String("url", rawURL), zap.Error(err))
		return r.cfg.DefaultPic
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("image download failed",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return r.cfg.DefaultPic
	}

	name := r.stampName(trailingSegment(rawURL))
	body := io.LimitReader(resp.Body, r.maxBytes())
	if err := r.writeFile(name, body); err != nil {
		r.logger.Warn("image store failed", zap.String("url", rawURL), zap.Error(err))
		return r.cfg.DefaultPic
	}
	return publicPrefix + "/" + name
}

// CleanOrphans removes stored files older than the orphan TTL that no
// character references. The placeholder asset is never removed. Returns the
// number of files deleted.
func (r *Resolver) CleanOrphans(db *gorm.DB) (int, error) {
	var pics []string
	if err := db.Model(&model.Character{}).Pluck("pic_url", &pics).Error; err != nil {
		return 0, err
	}
	referenced := make(map[string]bool, len(pics)+1)
	for _, p := range pics {
		referenced[path.Base(p)] = true
	}
	referenced[path.Base(r.cfg.DefaultPic)] = true

	entries, err := os.ReadDir(r.cfg.Dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-r.cfg.OrphanTTL)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || referenced[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(r.cfg.Dir, e.Name())); err != nil {
			r.logger.Warn("orphan removal failed", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("orphan images removed", zap.Int("count", removed))
	}
	return removed, nil
}

func (r *Resolver) maxBytes() int64 {
	if r.cfg.MaxDownloadMB <= 0 {
		return 8 << 20
	}
	return r.cfg.MaxDownloadMB << 20
}

func (r *Resolver) stampName(base string) string {
	base = strings.ReplaceAll(base, string(os.PathSeparator), "")
	if base == "" || base == "." {
		base = "image"
	}
	return fmt.Sprintf("%d%s", time.Now().UnixMilli(), base)
}

func (r *Resolver) writeFile(name string, src io.Reader) error {
	dst, err := os.Create(filepath.Join(r.cfg.Dir, name))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("image: write file: %w", err)
	}
	return nil
}

// IsWebURL reports whether s is a syntactically valid absolute http(s) URL.
func IsWebURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// trailingSegment returns everything after the last '/' of the URL path.
func trailingSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "image"
	}
	return path.Base(u.Path)
}
