package optimizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/BaSui01/promptgate/types"
)

// ErrCacheMiss is returned by ResultCache.Get when no entry exists.
var ErrCacheMiss = errors.New("optimization result not cached")

// ResultCache stores successful optimization results keyed by request
// identity. A nil cache on the Optimizer disables caching entirely.
type ResultCache interface {
	Get(ctx context.Context, key string) (*types.OptimizationResult, error)
	Set(ctx context.Context, key string, result *types.OptimizationResult) error
}

// CacheKey derives a deterministic key from the request fields that
// define its optimization identity: tool, task type and prompt text.
func CacheKey(req types.OptimizationRequest) string {
	h := sha256.New()
	h.Write([]byte(req.ToolName))
	h.Write([]byte{0})
	h.Write([]byte(req.TaskType))
	h.Write([]byte{0})
	h.Write([]byte(req.OriginalPrompt))
	sum := h.Sum(nil)
	return "promptgate:opt:" + hex.EncodeToString(sum[:16])
}
