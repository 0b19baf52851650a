package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/verma04/thrico-backend-services-sub003/internal/cache"
	"github.com/verma04/thrico-backend-services-sub003/internal/config"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Loader resolves what an action can earn.
type Loader struct {
	db    *gorm.DB
	repo  domain.Repository
	cache cache.RuleSetCache
	log   *zap.Logger
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Repo   domain.Repository
	Config config.Config
	Log    *zap.Logger
}

func NewLoader(p Params) *Loader {
	return New(p.DB, p.Repo, cache.NewRuleSetCache(p.Config.Engine.RuleCacheTTL), p.Log)
}

func New(db *gorm.DB, repo domain.Repository, ruleCache cache.RuleSetCache, log *zap.Logger) *Loader {
	if ruleCache == nil {
		ruleCache = cache.NewRuleSetCache(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{db: db, repo: repo, cache: ruleCache, log: log.Named("gamification.rules")}
}

// Load returns the active rules ordered by id and the active ACTION badges
// for (entity, module, action).
func (l *Loader) Load(ctx context.Context, entityID uuid.UUID, module, action string) (domain.RuleSet, error) {
	if set, ok := l.cache.Get(entityID, module, action); ok {
		return set, nil
	}

	rules, err := l.repo.ListActiveRules(ctx, l.db, entityID, module, action)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("load point rules: %w", err)
	}
	valid := rules[:0]
	for _, rule := range rules {
		if !rule.Trigger.Valid() {
			l.log.Warn("skipping rule with unknown trigger",
				zap.String("rule_id", rule.ID.String()),
				zap.String("trigger", string(rule.Trigger)),
			)
			continue
		}
		valid = append(valid, rule)
	}

	badges, err := l.repo.ListActiveActionBadges(ctx, l.db, entityID, module, action)
	if err != nil {
		return domain.RuleSet{}, fmt.Errorf("load action badges: %w", err)
	}

	set := domain.RuleSet{Rules: valid, ActionBadges: badges}
	l.cache.Set(entityID, module, action, set)
	return set, nil
}
