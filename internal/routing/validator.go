// Package routing implements the Routing Configuration Model's validator
// and the Router: pure, side-effect-free look-ups over a RoutingConfig.
package routing

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aras-services/aras-gateway/internal/domain"
)

// ValidationError collects every invariant violation found in one pass
// over a RoutingConfig, so operators can fix all of them in one edit
// cycle instead of one-at-a-time.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid routing configuration:\n")
	for _, v := range e.Violations {
		b.WriteString("  - ")
		b.WriteString(v)
		b.WriteString("\n")
	}
	return b.String()
}

var structValidate = validator.New()

// Validate checks the five invariants from spec §3 against cfg, returning
// every violation found rather than stopping at the first. A nil error
// means cfg is safe to route against.
func Validate(cfg *domain.RoutingConfig) error {
	var violations []string

	msSeen := make(map[string]bool, len(cfg.Microservices))

	for _, ms := range cfg.Microservices {
		if isBlank(ms.ID) {
			violations = append(violations, "microservice has an empty or whitespace id")
		} else {
			key := strings.ToLower(ms.ID)
			if msSeen[key] {
				violations = append(violations, fmt.Sprintf("duplicate microservice id %q", ms.ID))
			}
			msSeen[key] = true
		}

		if isBlank(ms.Queue) {
			violations = append(violations, fmt.Sprintf("microservice %q has an empty queue", displayID(ms.ID)))
		}

		resSeen := make(map[string]bool, len(ms.Resources))
		for _, res := range ms.Resources {
			if isBlank(res.Name) {
				violations = append(violations, fmt.Sprintf("microservice %q has a resource with an empty or whitespace name", displayID(ms.ID)))
				continue
			}

			resKey := strings.ToLower(res.Name)
			if resSeen[resKey] {
				violations = append(violations, fmt.Sprintf("microservice %q: duplicate resource name %q", displayID(ms.ID), res.Name))
			}
			resSeen[resKey] = true

			actSeen := make(map[string]bool, len(res.Actions))
			for _, act := range res.Actions {
				if isBlank(act.Name) {
					violations = append(violations, fmt.Sprintf("microservice %q, resource %q has an action with an empty or whitespace name", displayID(ms.ID), res.Name))
					continue
				}

				actKey := strings.ToLower(act.Name)
				if actSeen[actKey] {
					violations = append(violations, fmt.Sprintf("microservice %q, resource %q: duplicate action name %q", displayID(ms.ID), res.Name, act.Name))
				}
				actSeen[actKey] = true
			}
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// ValidateShape runs go-playground/validator struct-tag checks (required
// fields present) ahead of the semantic pass in Validate. It catches
// malformed JSON shape — a resource with no name key at all, say — that
// the cross-field uniqueness pass below cannot express as cleanly.
func ValidateShape(cfg *domain.RoutingConfig) error {
	for i := range cfg.Microservices {
		if err := structValidate.Struct(cfg.Microservices[i]); err != nil {
			return fmt.Errorf("routing config shape: %w", err)
		}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func displayID(id string) string {
	if isBlank(id) {
		return "<empty>"
	}
	return id
}
