// Package providers holds the registry of cleanup policies. Each registration
// builds a runnable scan pass for one policy in one region.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/sweeper/executor"
	"github.com/yairfalse/sweeper/internal/notify"
	"github.com/yairfalse/sweeper/internal/sweep"
	"github.com/yairfalse/sweeper/internal/telemetry"
	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/storage"
)

// Ledger is the subset of the ledger a pass reads and writes
type Ledger interface {
	sweep.Ledger
	storage.DeletionWriter
}

// Config holds everything a factory needs to build one pass
type Config struct {
	Policy  string
	Region  string
	Account string
	RunID   string
	Profile string

	Lifecycle    lifecycle.Config
	DaysToDelete int

	Journal  executor.Journal
	Ledger   Ledger
	Filter   sweep.ScopeFilter
	Notifier notify.Notifier
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Clock returns the configured clock or time.Now
func (c Config) Clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

// Pass is one policy in one region, ready to run
type Pass interface {
	Policy() string
	Region() string
	Run(ctx context.Context) (*sweep.Summary, error)
}

// Factory creates a pass
type Factory func(ctx context.Context, cfg Config) (Pass, error)

// Registration describes one policy
type Registration struct {
	Name        string
	Description string
	// Global policies act on account-wide resources and run in one region only
	Global  bool
	Factory Factory
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Registration)
)

// Register adds a policy. It panics on an empty or duplicate name.
func Register(reg Registration) {
	mu.Lock()
	defer mu.Unlock()

	if reg.Name == "" || reg.Factory == nil {
		panic("providers: registration needs a name and a factory")
	}
	if _, exists := registry[reg.Name]; exists {
		panic(fmt.Sprintf("providers: policy %s registered twice", reg.Name))
	}
	registry[reg.Name] = reg
}

// Get returns a registered policy
func Get(name string) (Registration, error) {
	mu.RLock()
	defer mu.RUnlock()

	reg, exists := registry[name]
	if !exists {
		return Registration{}, fmt.Errorf("policy %s not found", name)
	}
	return reg, nil
}

// List returns all registrations sorted by name
func List() []Registration {
	mu.RLock()
	defer mu.RUnlock()

	regs := make([]Registration, 0, len(registry))
	for _, reg := range registry {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Name < regs[j].Name })
	return regs
}

// Names returns the registered policy names sorted
func Names() []string {
	regs := List()
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.Name
	}
	return names
}

type pass[T any] struct {
	policy string
	region string
	runner *sweep.Runner[T]
}

func (p *pass[T]) Policy() string { return p.policy }
func (p *pass[T]) Region() string { return p.region }

func (p *pass[T]) Run(ctx context.Context) (*sweep.Summary, error) {
	return p.runner.Run(ctx)
}

// NewPass wires a provider into a guarded engine and a runner
func NewPass[T any](provider lifecycle.Provider[T], cfg Config) Pass {
	logger := cfg.Logger.With().Str("policy", cfg.Policy).Str("region", cfg.Region).Logger()

	guardOpts := []executor.GuardOption{executor.WithGuardLogger(logger)}
	if cfg.Journal != nil {
		guardOpts = append(guardOpts, executor.WithJournal(cfg.Journal))
	}
	if cfg.Ledger != nil {
		guardOpts = append(guardOpts, executor.WithLedger(cfg.Ledger))
	}
	scope := executor.Scope{RunID: cfg.RunID, Policy: cfg.Policy, Region: cfg.Region, Account: cfg.Account}
	guard := executor.NewGuard[T](provider, scope, cfg.Lifecycle.DryRun, guardOpts...)

	engine := lifecycle.NewEngine[T](guard, cfg.Lifecycle,
		lifecycle.WithClock[T](cfg.Clock()),
		lifecycle.WithLogger[T](logger))

	opts := sweep.Options{
		Policy:       cfg.Policy,
		Region:       cfg.Region,
		Account:      cfg.Account,
		RunID:        cfg.RunID,
		DaysToDelete: cfg.DaysToDelete,
		Filter:       cfg.Filter,
		Notifier:     cfg.Notifier,
		Metrics:      cfg.Metrics,
		Logger:       cfg.Logger,
	}
	if cfg.Ledger != nil {
		opts.Ledger = cfg.Ledger
	}

	return &pass[T]{
		policy: cfg.Policy,
		region: cfg.Region,
		runner: sweep.New[T](engine, opts),
	}
}
