package cqrs

import (
	"cmp"
	"reflect"
	"slices"

	"github.com/bjaus/cqrs/logger"
)

// CompositeStrategy runs several strategies in priority order and resolves
// overlaps between their results according to a ConflictPolicy.
type CompositeStrategy struct {
	strategies []Strategy
	policy     ConflictPolicy
	logger     logger.Logger
}

var _ Strategy = (*CompositeStrategy)(nil)

// NewCompositeStrategy returns a composite over strategies, sorted by
// descending priority. Strategies with equal priority keep their order.
// Nil strategies are dropped.
func NewCompositeStrategy(policy ConflictPolicy, l logger.Logger, strategies ...Strategy) *CompositeStrategy {
	sorted := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			sorted = append(sorted, s)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Strategy) int {
		return cmp.Compare(b.Priority(), a.Priority())
	})
	return &CompositeStrategy{strategies: sorted, policy: policy, logger: l}
}

// Name implements Strategy.
func (c *CompositeStrategy) Name() string { return "CompositeDiscovery" }

// Priority is the highest priority among the wrapped strategies.
func (c *CompositeStrategy) Priority() int {
	if len(c.strategies) == 0 {
		return 0
	}
	return c.strategies[0].Priority()
}

// Policy returns the conflict policy.
func (c *CompositeStrategy) Policy() ConflictPolicy { return c.policy }

// Strategies returns the wrapped strategies in execution order.
func (c *CompositeStrategy) Strategies() []Strategy { return slices.Clone(c.strategies) }

// Supports reports whether any wrapped strategy supports source.
func (c *CompositeStrategy) Supports(source any) bool {
	for _, s := range c.strategies {
		if s.Supports(source) {
			return true
		}
	}
	return false
}

// Discover runs every supporting strategy and merges their results.
//
// FirstWins and FailFast stop after the first strategy whose accepted result
// is non-empty. FailFast then asks the remaining supporting strategies what
// they would have found, only to fail if any of it overlaps; their results
// are not used.
func (c *CompositeStrategy) Discover(source any) ([]Descriptor, error) {
	var all []Descriptor
	claimed := make(map[reflect.Type]struct{})

	for i, s := range c.strategies {
		if !s.Supports(source) {
			continue
		}

		found, err := s.Discover(source)
		if err != nil {
			if c.policy == FailFast {
				return nil, c.strategyFailed(source, s, err)
			}
			logger.Warn(c.logger, "discovery strategy failed, skipping",
				logger.With("strategy", s.Name()),
				logger.With("source", reflect.TypeOf(source).String()),
				logger.With("error", err),
			)
			continue
		}

		accepted, err := c.resolve(source, found, claimed)
		if err != nil {
			return nil, err
		}
		for _, d := range accepted {
			claimed[d.MessageType] = struct{}{}
		}
		all = append(all, accepted...)

		if len(accepted) == 0 {
			continue
		}
		if c.policy == FailFast {
			if err := c.checkRest(source, c.strategies[i+1:], claimed); err != nil {
				return nil, err
			}
		}
		if c.policy == FailFast || c.policy == FirstWins {
			break
		}
	}

	if c.policy == LastWins {
		all = collapseLast(all)
	}
	return all, nil
}

// resolve filters one strategy's result against the message types claimed
// by earlier strategies.
func (c *CompositeStrategy) resolve(source any, found []Descriptor, claimed map[reflect.Type]struct{}) ([]Descriptor, error) {
	switch c.policy {
	case FirstWins:
		accepted := make([]Descriptor, 0, len(found))
		for _, d := range found {
			if _, ok := claimed[d.MessageType]; ok {
				logger.Debug(c.logger, "handler already discovered, skipping",
					logger.With("messageType", d.MessageType.String()),
					logger.With("handler", d.HandlerName),
				)
				continue
			}
			accepted = append(accepted, d)
		}
		return accepted, nil
	case FailFast:
		for _, d := range found {
			if _, ok := claimed[d.MessageType]; ok {
				return nil, c.duplicate(source, d)
			}
		}
		return found, nil
	default:
		return found, nil
	}
}

// checkRest runs the remaining strategies to detect message types they would
// also claim.
func (c *CompositeStrategy) checkRest(source any, rest []Strategy, claimed map[reflect.Type]struct{}) error {
	for _, s := range rest {
		if !s.Supports(source) {
			continue
		}
		found, err := s.Discover(source)
		if err != nil {
			return c.strategyFailed(source, s, err)
		}
		for _, d := range found {
			if _, ok := claimed[d.MessageType]; ok {
				return c.duplicate(source, d)
			}
		}
	}
	return nil
}

func (c *CompositeStrategy) strategyFailed(source any, s Strategy, err error) error {
	return &DiscoveryError{
		Strategy: c.Name(),
		Source:   source,
		Message:  "strategy execution failed: " + s.Name(),
		Err:      err,
	}
}

func (c *CompositeStrategy) duplicate(source any, d Descriptor) error {
	return &DiscoveryError{
		Strategy: c.Name(),
		Source:   source,
		Message:  "duplicate handler registration for message type: " + d.MessageType.String(),
		Err:      &MultipleHandlersError{MessageType: d.MessageType, Kind: d.Kind, Count: 2},
	}
}

// collapseLast keeps, for each command and query message type, only the
// last descriptor, in the position of the first. Event descriptors are all
// kept.
func collapseLast(all []Descriptor) []Descriptor {
	type key struct {
		kind Role
		t    reflect.Type
	}
	last := make(map[key]Descriptor)
	for _, d := range all {
		if d.Kind != RoleEvent {
			last[key{d.Kind, d.MessageType}] = d
		}
	}

	out := make([]Descriptor, 0, len(all))
	seen := make(map[key]struct{})
	for _, d := range all {
		if d.Kind == RoleEvent {
			out = append(out, d)
			continue
		}
		k := key{d.Kind, d.MessageType}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, last[k])
	}
	return out
}
