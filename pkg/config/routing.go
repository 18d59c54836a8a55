package config

import (
	"fmt"

	"github.com/zen-systems/ticketflow/pkg/router"
	"github.com/zen-systems/ticketflow/pkg/ticket"
)

// RoutingConfig holds the keyword triggers behind the classifier's hint.
type RoutingConfig struct {
	Triggers map[string][]string `yaml:"triggers,omitempty"`
}

// RuleSet compiles the triggers.
func (r RoutingConfig) RuleSet() *router.RuleSet {
	return router.NewRuleSet(r.Triggers)
}

func (r RoutingConfig) validate() error {
	for target, triggers := range r.Triggers {
		if !ticket.Target(target).Valid() {
			return fmt.Errorf("routing.triggers: unknown target %q", target)
		}
		if len(triggers) == 0 {
			return fmt.Errorf("routing.triggers: target %q has no triggers", target)
		}
	}
	return nil
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if len(cfg.Triggers) == 0 {
		cfg.Triggers = router.DefaultTriggers()
	}
}
