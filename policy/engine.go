// Package policy evaluates rego waiver policies against audit
// findings. A waived issue stays in the report but stops counting
// against the health score.
package policy

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/vaaka/telemetry"
	"github.com/yairfalse/vaaka/types"
)

// waiverQuery is the document waiver policies must populate. Every
// policy ships as `package vaaka.waivers` and defines `waive` (bool)
// plus an optional `reason` (string).
const waiverQuery = "data.vaaka.waivers"

// WaiverInput is the evaluation input for one finding.
type WaiverInput struct {
	Issue IssueInput `json:"issue"`
	LB    LBInput    `json:"lb"`
}

// IssueInput is the finding as rego sees it.
type IssueInput struct {
	Severity   string `json:"severity"`
	Category   string `json:"category"`
	Type       string `json:"type"`
	ResourceID string `json:"resource_id"`
}

// LBInput is the resource summary as rego sees it.
type LBInput struct {
	Name        string `json:"name"`
	ARN         string `json:"arn"`
	Kind        string `json:"kind"`
	Scheme      string `json:"scheme"`
	Environment string `json:"environment"`
	Team        string `json:"team"`
	AgeDays     int    `json:"age_days"`
}

// NewWaiverInput flattens one finding and its resource for rego.
func NewWaiverInput(lb types.LoadBalancer, issue types.Issue) WaiverInput {
	return WaiverInput{
		Issue: IssueInput{
			Severity:   string(issue.Severity),
			Category:   string(issue.Category),
			Type:       issue.Type,
			ResourceID: issue.ResourceID,
		},
		LB: LBInput{
			Name:        lb.Name,
			ARN:         lb.ARN,
			Kind:        string(lb.Kind),
			Scheme:      string(lb.Scheme),
			Environment: lb.Tags.Environment,
			Team:        lb.Tags.Team,
			AgeDays:     int(lb.Age().Hours() / 24),
		},
	}
}

type waiverDecision struct {
	Waive  bool
	Reason string
}

// Engine holds compiled waiver policies keyed by name.
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// NewEngine creates an empty waiver engine.
func NewEngine(logger *telemetry.Logger) *Engine {
	return &Engine{
		logger:  logger,
		tracer:  otel.Tracer("policy"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// LoadPolicy compiles one rego policy and registers it under name.
// Loading the same name again replaces the previous policy.
func (e *Engine) LoadPolicy(ctx context.Context, name, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "load_waiver_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query(waiverQuery),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile waiver policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy", name).
		Msg("waiver policy loaded")
	return nil
}

// PolicyCount returns how many policies are loaded.
func (e *Engine) PolicyCount() int {
	return len(e.queries)
}

// PolicyNames returns loaded policy names in evaluation order.
func (e *Engine) PolicyNames() []string {
	names := make([]string, 0, len(e.queries))
	for name := range e.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply evaluates every policy against every issue and marks the
// waived ones in place. Policies run in name order and the first
// match wins. An evaluation error leaves the issue active: a broken
// waiver must never suppress a real finding.
func (e *Engine) Apply(ctx context.Context, lb types.LoadBalancer, issues []types.Issue) []types.Issue {
	if len(e.queries) == 0 || len(issues) == 0 {
		return issues
	}

	ctx, span := e.tracer.Start(ctx, "apply_waivers",
		trace.WithAttributes(
			attribute.String("lb.name", lb.Name),
			attribute.Int("issues.count", len(issues)),
		))
	defer span.End()

	names := e.PolicyNames()
	waived := 0
	for i := range issues {
		input := NewWaiverInput(lb, issues[i])
		for _, name := range names {
			decision, err := e.evaluate(ctx, name, input)
			if err != nil {
				e.logger.WithContext(ctx).Error().
					Err(err).
					Str("policy", name).
					Str("issue_type", issues[i].Type).
					Msg("waiver evaluation failed")
				continue
			}
			if !decision.Waive {
				continue
			}

			issues[i].Waived = true
			issues[i].WaivedBy = name
			waived++
			telemetry.RecordWaiverAppliedEvent(span, issues[i].Type, lb.ARN, lb.Tags.Environment, name, "issue waived")
			e.logger.WithContext(ctx).Info().
				Str("policy", name).
				Str("issue_type", issues[i].Type).
				Str("lb", lb.Name).
				Str("reason", decision.Reason).
				Msg("issue waived")
			break
		}
	}

	span.SetAttributes(attribute.Int("waivers.applied", waived))
	return issues
}

func (e *Engine) evaluate(ctx context.Context, name string, input WaiverInput) (waiverDecision, error) {
	query, ok := e.queries[name]
	if !ok {
		return waiverDecision{}, fmt.Errorf("unknown policy %s", name)
	}

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return waiverDecision{}, fmt.Errorf("evaluation failed: %w", err)
	}
	return parseDecision(results), nil
}

// parseDecision reads waive/reason out of the waivers document. A
// policy whose body never matched produces an empty document, which
// parses as no waiver.
func parseDecision(results rego.ResultSet) waiverDecision {
	var d waiverDecision
	for _, res := range results {
		if len(res.Expressions) == 0 {
			continue
		}
		doc, ok := res.Expressions[0].Value.(map[string]interface{})
		if !ok {
			continue
		}
		if waive, ok := doc["waive"].(bool); ok {
			d.Waive = waive
		}
		if reason, ok := doc["reason"].(string); ok {
			d.Reason = reason
		}
	}
	return d
}
