// Package policy evaluates Rego scope rules that exclude resources from a scan pass.
//
// Modules must declare package sweeper and contribute reason strings to the
// exclude set, for example:
//
//	package sweeper
//
//	exclude contains "production account" if input.account == "123456789012"
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Query is the rule evaluated for every resource
const Query = "data.sweeper.exclude"

// Input is the document exposed to Rego as input
type Input struct {
	Policy   string        `json:"policy"`
	Region   string        `json:"region"`
	Account  string        `json:"account"`
	Resource ResourceInput `json:"resource"`
}

// ResourceInput describes the resource under evaluation
type ResourceInput struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Region  string            `json:"region"`
	Name    string            `json:"name,omitempty"`
	State   string            `json:"state,omitempty"`
	Tags    map[string]string `json:"tags"`
	AgeDays *int              `json:"age_days,omitempty"`
}

// Filter evaluates compiled scope rules. A Filter with no modules excludes nothing.
type Filter struct {
	query   *rego.PreparedEvalQuery
	modules []string
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewFilter compiles the given modules (name -> Rego source)
func NewFilter(ctx context.Context, modules map[string]string, logger zerolog.Logger) (*Filter, error) {
	f := &Filter{
		logger: logger,
		tracer: otel.Tracer("sweeper.policy"),
	}
	if len(modules) == 0 {
		return f, nil
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := []func(*rego.Rego){rego.Query(Query)}
	for _, name := range names {
		opts = append(opts, rego.Module(name, modules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile scope policies: %w", err)
	}

	f.query = &prepared
	f.modules = names

	logger.Info().Strs("modules", names).Msg("scope policies loaded")
	return f, nil
}

// LoadDir compiles every *.rego file under dir. An empty dir yields a no-op filter.
func LoadDir(ctx context.Context, dir string, logger zerolog.Logger) (*Filter, error) {
	if dir == "" {
		return NewFilter(ctx, nil, logger)
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("policy directory %s: %w", dir, err)
	}

	modules := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, "_test.rego") {
			return nil
		}

		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		modules[rel] = string(content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewFilter(ctx, modules, logger)
}

// Enabled reports whether any module is loaded
func (f *Filter) Enabled() bool {
	return f != nil && f.query != nil
}

// Modules returns the loaded module names
func (f *Filter) Modules() []string {
	if f == nil {
		return nil
	}
	return f.modules
}

// Excluded returns the reasons the resource is excluded, sorted. Empty means keep.
func (f *Filter) Excluded(ctx context.Context, in Input) ([]string, error) {
	if !f.Enabled() {
		return nil, nil
	}

	ctx, span := f.tracer.Start(ctx, "policy.exclude",
		trace.WithAttributes(
			attribute.String("resource.id", in.Resource.ID),
			attribute.String("policy", in.Policy)))
	defer span.End()

	if in.Resource.Tags == nil {
		in.Resource.Tags = map[string]string{}
	}

	results, err := f.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, fmt.Errorf("evaluate scope policies for %s: %w", in.Resource.ID, err)
	}

	var reasons []string
	for _, res := range results {
		for _, expr := range res.Expressions {
			reasons = append(reasons, toReasons(expr.Value)...)
		}
	}
	sort.Strings(reasons)

	if len(reasons) > 0 {
		f.logger.Debug().
			Str("resource_id", in.Resource.ID).
			Strs("reasons", reasons).
			Msg("resource excluded by scope policy")
	}
	return reasons, nil
}

// toReasons converts a Rego set (decoded as []interface{}) into strings
func toReasons(value interface{}) []string {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}

	reasons := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			reasons = append(reasons, v)
		default:
			reasons = append(reasons, fmt.Sprint(v))
		}
	}
	return reasons
}
