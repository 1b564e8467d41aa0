package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
)

// Service answers similarity queries against a fixed Index, memoising
// results in an optional cache.
type Service struct {
	index *Index
	cache domain.Cache
	ttl   time.Duration
	topK  int
}

// NewService wraps index. cache may be nil, in which case every query is
// computed directly.
func NewService(index *Index, cache domain.Cache, ttl time.Duration, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{index: index, cache: cache, ttl: ttl, topK: topK}
}

// LoadService reads the catalog at path and builds a Service over it.
func LoadService(path string, cache domain.Cache, ttl time.Duration, topK int) (*Service, error) {
	products, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	index, err := NewIndex(products)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return NewService(index, cache, ttl, topK), nil
}

// Size returns the number of products in the catalog.
func (s *Service) Size() int { return s.index.Len() }

// Recommend returns up to topK products most similar to description.
// topK <= 0 uses the service default. The result is never nil.
func (s *Service) Recommend(ctx context.Context, description string, topK int) []domain.Product {
	if topK <= 0 {
		topK = s.topK
	}

	key := cacheKey(description, topK)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil && data != nil {
			var cached []domain.Product
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached
			}
		} else if err != nil {
			slog.Debug("recommendation cache read failed", "error", err)
		}
	}

	matches := s.index.Query(description, topK)
	products := make([]domain.Product, len(matches))
	for i, m := range matches {
		products[i] = m.Product
	}

	if s.cache != nil {
		if data, err := json.Marshal(products); err == nil {
			if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
				slog.Debug("recommendation cache write failed", "error", err)
			}
		}
	}
	return products
}

func cacheKey(description string, topK int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(description)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("recommend:%d:%s", topK, hex.EncodeToString(sum[:12]))
}
