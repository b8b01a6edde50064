package acl

import (
	"fmt"
	"sort"

	"github.com/neogan74/bakery/internal/identity"
	"github.com/neogan74/bakery/internal/logger"
	"github.com/neogan74/bakery/internal/metrics"
)

// Evaluator holds the policy registry. It is built once and never mutated
// afterwards, so it needs no locking.
type Evaluator struct {
	policies map[string]Policy
	names    []string
	log      logger.Logger
}

// NewEvaluator builds the registry from policies. Duplicate names and
// malformed policies fail construction.
func NewEvaluator(log logger.Logger, policies ...Policy) (*Evaluator, error) {
	e := &Evaluator{
		policies: make(map[string]Policy, len(policies)),
		log:      log,
	}

	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := e.policies[p.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrPolicyExists, p.Name)
		}
		e.policies[p.Name] = p
		e.names = append(e.names, p.Name)
	}
	sort.Strings(e.names)

	metrics.PoliciesRegistered.Set(float64(len(e.policies)))
	log.Info("Policy registry built", logger.Strings("policies", e.names))
	return e, nil
}

// GetPolicy retrieves a policy by name
func (e *Evaluator) GetPolicy(name string) (Policy, error) {
	p, ok := e.policies[name]
	if !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return p, nil
}

// ListPolicies returns all policy names, sorted
func (e *Evaluator) ListPolicies() []string {
	return append([]string(nil), e.names...)
}

// Evaluate checks one policy against claims. Evaluation is pure apart from
// metrics and debug logging.
func (e *Evaluator) Evaluate(name string, claims identity.Claims) (Decision, error) {
	p, ok := e.policies[name]
	if !ok {
		return Deny, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}

	decision := Deny
	if p.Requirement.Satisfied(claims) {
		decision = Allow
	}

	metrics.PolicyEvaluationsTotal.WithLabelValues(name, decision.String()).Inc()
	e.log.Debug("Policy evaluated",
		logger.String("policy", name),
		logger.String("requirement", p.Requirement.String()),
		logger.String("decision", decision.String()))
	return decision, nil
}

// Authorize applies an endpoint guard. Policies are ANDed: the first denying
// policy is returned with Deny.
func (e *Evaluator) Authorize(access Access, claims identity.Claims) (Decision, string, error) {
	switch access.Mode {
	case AccessAnonymous, AccessAuthenticated:
		return Allow, "", nil
	case AccessPolicies:
		if len(access.Policies) == 0 {
			return Deny, "", ErrNoPolicies
		}
		for _, name := range access.Policies {
			decision, err := e.Evaluate(name, claims)
			if err != nil {
				return Deny, name, err
			}
			if decision == Deny {
				return Deny, name, nil
			}
		}
		return Allow, "", nil
	default:
		return Deny, "", fmt.Errorf("unsupported access mode %s", access.Mode)
	}
}

// Require builds a policy guard after checking that every name is
// registered. Call it while wiring routes so that typos fail at startup.
func (e *Evaluator) Require(names ...string) (Access, error) {
	access := Policies(names...)
	if err := e.Validate(access); err != nil {
		return Access{}, err
	}
	return access, nil
}

// MustRequire is Require for route tables built at startup.
func (e *Evaluator) MustRequire(names ...string) Access {
	access, err := e.Require(names...)
	if err != nil {
		panic(err)
	}
	return access
}

// Validate checks a guard against the registry
func (e *Evaluator) Validate(access Access) error {
	if access.Mode != AccessPolicies {
		return nil
	}
	if len(access.Policies) == 0 {
		return ErrNoPolicies
	}
	for _, name := range access.Policies {
		if _, ok := e.policies[name]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
		}
	}
	return nil
}
