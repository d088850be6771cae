package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/provider"
	"github.com/sells-group/statement-cli/internal/store"
)

const (
	kindClassify = "classify"
	kindYears    = "years"
)

// pageCache stores provider results per page image so identical pages are
// not paid for twice. A nil *pageCache is a valid, disabled cache. Cache
// failures never fail a page.
type pageCache struct {
	st       store.Store
	provider string
	model    string
	ttl      time.Duration
}

func newPageCache(cfg *config.Config, st store.Store, p provider.Provider) *pageCache {
	if st == nil || !cfg.Cache.Enabled {
		return nil
	}
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &pageCache{
		st:       st,
		provider: p.Name(),
		model:    p.Model(),
		ttl:      ttl,
	}
}

func (c *pageCache) key(page model.PageImage, kind string) store.PageKey {
	return store.PageKey{
		ImageHash: page.Hash(),
		Provider:  c.provider,
		Model:     c.model,
		Kind:      kind,
	}
}

// get decodes a cached result into out and reports whether it was found.
func (c *pageCache) get(ctx context.Context, page model.PageImage, kind string, out any) bool {
	if c == nil {
		return false
	}
	data, err := c.st.GetCachedPage(ctx, c.key(page, kind))
	if err != nil {
		zap.L().Warn("pipeline: cache read failed",
			zap.Int("page", page.PageNum),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return false
	}
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		zap.L().Warn("pipeline: ignoring corrupt cache entry",
			zap.Int("page", page.PageNum),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return false
	}
	zap.L().Debug("pipeline: cache hit", zap.Int("page", page.PageNum), zap.String("kind", kind))
	return true
}

func (c *pageCache) put(ctx context.Context, page model.PageImage, kind string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("pipeline: cache encode failed", zap.String("kind", kind), zap.Error(err))
		return
	}
	if err := c.st.SetCachedPage(ctx, c.key(page, kind), data, c.ttl); err != nil {
		zap.L().Warn("pipeline: cache write failed",
			zap.Int("page", page.PageNum),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

// extractKind keys extraction results by statement, requested fields and
// years, since each changes the prompt.
func extractKind(req provider.ExtractRequest) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(req.Fields, "\x1f")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(req.Years, ",")))
	return "extract:" + string(req.Statement) + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}
