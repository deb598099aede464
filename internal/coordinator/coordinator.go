// Package coordinator executes a decision's specialist list, in parallel or
// in sequence, converting every failure into an absence so a single slow or
// broken specialist never sinks the turn.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tutord/internal/decision"
	"tutord/internal/specialist"
)

// Coordinator dispatches specialists per the turn decision.
type Coordinator struct {
	registry *specialist.Registry
	log      *zap.Logger
	timeout  time.Duration
}

// Config configures a Coordinator.
type Config struct {
	// Registry resolves specialist names. Required.
	Registry *specialist.Registry
	// Logger receives absence events. Defaults to zap.NewNop().
	Logger *zap.Logger
	// Timeout bounds each specialist invocation. Defaults to 30s.
	Timeout time.Duration
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Coordinator{registry: cfg.Registry, log: cfg.Logger, timeout: cfg.Timeout}
}

// Execute runs every specialist the decision names and returns one result per
// name. The returned map always has an entry for each requested specialist;
// failures, timeouts, and panics surface as absences.
func (c *Coordinator) Execute(ctx context.Context, dec decision.Decision, base specialist.Input) map[decision.Specialist]specialist.Result {
	if dec.Strategy == decision.StrategyParallel {
		return c.executeParallel(ctx, dec, base)
	}
	return c.executeSequential(ctx, dec, base)
}

func (c *Coordinator) executeParallel(ctx context.Context, dec decision.Decision, base specialist.Input) map[decision.Specialist]specialist.Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[decision.Specialist]specialist.Result, len(dec.Specialists))
	)
	for _, name := range dec.Specialists {
		wg.Add(1)
		go func(name decision.Specialist) {
			defer wg.Done()
			res := c.invoke(ctx, name, dec, base, nil)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) executeSequential(ctx context.Context, dec decision.Decision, base specialist.Input) map[decision.Specialist]specialist.Result {
	results := make(map[decision.Specialist]specialist.Result, len(dec.Specialists))
	for _, name := range dec.Specialists {
		prior := make(map[decision.Specialist]specialist.Result, len(results))
		for k, v := range results {
			prior[k] = v
		}
		results[name] = c.invoke(ctx, name, dec, base, prior)
	}
	return results
}

// invoke runs a single specialist with its own deadline and panic guard.
func (c *Coordinator) invoke(ctx context.Context, name decision.Specialist, dec decision.Decision, base specialist.Input, prior map[decision.Specialist]specialist.Result) (res specialist.Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("specialist panicked",
				zap.String("specialist", string(name)),
				zap.Any("panic", r))
			res = specialist.Absence(name, fmt.Sprintf("panic: %v", r))
		}
	}()

	rn, payload, err := c.registry.Resolve(name, dec.Requirements)
	if err != nil {
		c.log.Warn("specialist not dispatchable",
			zap.String("specialist", string(name)),
			zap.Error(err))
		return specialist.Absence(name, err.Error())
	}

	in := base
	in.Requirements = payload
	in.Prior = prior

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err = rn.Run(callCtx, in)
	if err != nil {
		c.log.Warn("specialist failed",
			zap.String("specialist", string(name)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return specialist.Absence(name, err.Error())
	}
	c.log.Debug("specialist completed",
		zap.String("specialist", string(name)),
		zap.Duration("elapsed", time.Since(start)))
	return res
}
