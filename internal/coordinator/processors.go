package coordinator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
	"github.com/mbheramil/smart-seo-fixer/internal/ratelimit"
)

// CommandProcessor runs a shell command per item. The command template
// comes from the job's options under "command"; every occurrence of
// "{item}" is replaced with the item ref, or the ref is appended as a
// trailing argument when the placeholder is absent. When Service is
// set, each run counts as one call against that service's budget.
type CommandProcessor struct {
	Limiter *ratelimit.Limiter
	Service string
}

func (p *CommandProcessor) Process(ctx context.Context, item string, opts job.Options) error {
	tmpl, _ := opts["command"].(string)
	if tmpl == "" {
		return fmt.Errorf("options missing %q", "command")
	}
	if p.Limiter != nil && p.Service != "" {
		if err := p.Limiter.Acquire(p.Service); err != nil {
			return err
		}
	}
	cmdStr := tmpl
	if strings.Contains(tmpl, "{item}") {
		cmdStr = strings.ReplaceAll(tmpl, "{item}", item)
	} else {
		cmdStr = tmpl + " " + item
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-lc", cmdStr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("item %s: %w", item, err)
	}
	return nil
}

// NoopProcessor consumes one rate-limit call per item and succeeds.
// Useful for smoke-testing budgets and drivers without side effects.
type NoopProcessor struct {
	Limiter *ratelimit.Limiter
	Service string
}

func (p *NoopProcessor) Process(ctx context.Context, item string, opts job.Options) error {
	if p.Limiter != nil && p.Service != "" {
		return p.Limiter.Acquire(p.Service)
	}
	return nil
}
