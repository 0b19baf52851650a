package cache

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
)

// RuleSetCache stores hot-path rule lookups per (entity, module, action).
type RuleSetCache interface {
	Get(entityID uuid.UUID, module, action string) (domain.RuleSet, bool)
	Set(entityID uuid.UUID, module, action string, set domain.RuleSet)
}

type ruleSetCache struct {
	sets Cache[string, domain.RuleSet]
	ttl  time.Duration
}

// NewRuleSetCache returns a cache holding rule sets for ttl. A zero ttl
// disables caching.
func NewRuleSetCache(ttl time.Duration) RuleSetCache {
	return &ruleSetCache{
		sets: NewTTLCache[string, domain.RuleSet](),
		ttl:  ttl,
	}
}

func (c *ruleSetCache) Get(entityID uuid.UUID, module, action string) (domain.RuleSet, bool) {
	return c.sets.Get(cacheKey(entityID.String(), module, action))
}

func (c *ruleSetCache) Set(entityID uuid.UUID, module, action string, set domain.RuleSet) {
	c.sets.Set(cacheKey(entityID.String(), module, action), set, c.ttl)
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		values = append(values, strings.TrimSpace(part))
	}
	return strings.Join(values, "|")
}
