package cqrs

import (
	"fmt"
	"strings"

	"github.com/bjaus/cqrs/logger"
)

// Strategy finds the handlers declared by a source object.
type Strategy interface {
	// Discover returns a descriptor for every handler source declares.
	Discover(source any) ([]Descriptor, error)

	// Supports reports whether source declares any handler this strategy
	// recognizes. Supports never fails.
	Supports(source any) bool

	// Priority orders strategies inside a composite; higher runs first.
	Priority() int

	// Name identifies the strategy in logs and errors.
	Name() string
}

// Strategy priorities.
const (
	AnnotationPriority = 100
	InterfacePriority  = 50
)

// ConflictPolicy decides what a composite strategy does when more than one
// of its strategies discovers handlers on the same source. The zero value
// is FailFast.
type ConflictPolicy uint8

const (
	// FailFast rejects any message type discovered by two strategies and
	// surfaces strategy failures.
	FailFast ConflictPolicy = iota

	// FirstWins keeps the result of the highest-priority strategy that
	// finds anything.
	FirstWins

	// LastWins keeps every result; a later command or query handler for the
	// same message type replaces an earlier one.
	LastWins

	// MergeAll keeps every result unfiltered.
	MergeAll
)

var policyNames = map[ConflictPolicy]string{
	FailFast:  "FAIL_FAST",
	FirstWins: "FIRST_WINS",
	LastWins:  "LAST_WINS",
	MergeAll:  "MERGE_ALL",
}

func (p ConflictPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("ConflictPolicy(%d)", uint8(p))
}

// ParseConflictPolicy accepts FAIL_FAST, fail-fast, failFast and similar
// spellings of each policy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	for p, name := range policyNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return p, nil
		}
	}
	return 0, configErr("unknown conflict policy: %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p ConflictPolicy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, configErr("unknown conflict policy: %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ConflictPolicy) UnmarshalText(text []byte) error {
	v, err := ParseConflictPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// DefaultStrategy returns the composite of the annotation strategy (using
// detector, CoreDetector when nil) and the interface strategy.
func DefaultStrategy(policy ConflictPolicy, detector Detector, l logger.Logger) *CompositeStrategy {
	return NewCompositeStrategy(policy, l,
		NewAnnotationStrategy(detector, l),
		NewInterfaceStrategy(l),
	)
}
