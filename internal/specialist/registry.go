package specialist

import (
	"context"
	"fmt"

	"tutord/internal/decision"
)

// Runner is one specialist: a named, stateless unit that turns shared turn
// context into a typed result.
type Runner interface {
	Name() decision.Specialist
	Run(ctx context.Context, in Input) (Result, error)
}

// Registry maps specialist names to implementations and gates dispatch on
// requirement payload types.
type Registry struct {
	runners map[decision.Specialist]Runner
}

// NewRegistry creates a registry holding the given runners.
func NewRegistry(runners ...Runner) *Registry {
	r := &Registry{runners: make(map[decision.Specialist]Runner, len(runners))}
	for _, rn := range runners {
		r.runners[rn.Name()] = rn
	}
	return r
}

// Register adds or replaces a runner.
func (r *Registry) Register(rn Runner) {
	r.runners[rn.Name()] = rn
}

// Get returns the runner for a name.
func (r *Registry) Get(name decision.Specialist) (Runner, bool) {
	rn, ok := r.runners[name]
	return rn, ok
}

// Resolve checks that a decision's specialist is dispatchable: the runner
// exists and any requirements payload carries the type that specialist
// accepts. It returns the runner and the payload to place in Input.
func (r *Registry) Resolve(name decision.Specialist, reqs decision.Requirements) (Runner, any, error) {
	rn, ok := r.runners[name]
	if !ok {
		return nil, nil, fmt.Errorf("no specialist registered as %q", name)
	}
	payload := reqs.For(name)
	if payload != nil {
		if err := checkRequirements(name, payload); err != nil {
			return nil, nil, err
		}
	}
	return rn, payload, nil
}

func checkRequirements(name decision.Specialist, payload any) error {
	var ok bool
	switch name {
	case decision.SpecialistExplainer:
		_, ok = payload.(*decision.ExplainerRequirements)
	case decision.SpecialistEvaluator:
		_, ok = payload.(*decision.EvaluatorRequirements)
	case decision.SpecialistAssessor:
		_, ok = payload.(*decision.AssessorRequirements)
	case decision.SpecialistSteering:
		_, ok = payload.(*decision.SteeringRequirements)
	case decision.SpecialistPlanner:
		_, ok = payload.(*decision.PlannerRequirements)
	default:
		return fmt.Errorf("specialist %q takes no requirements", name)
	}
	if !ok {
		return fmt.Errorf("requirements payload %T does not match specialist %q", payload, name)
	}
	return nil
}
