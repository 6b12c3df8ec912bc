// Package pipeline executes the configured module sequence. Modules
// run strictly one after another; a fatal-class error raises the panic
// flag and short-circuits everything that remains.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"gramwatch/config"
	"gramwatch/internal/domain"
)

// Module is one independently activatable pipeline stage.
type Module interface {
	Name() string
	Enabled(cfg *config.Config) bool
	Run(ctx context.Context) error
}

// Orchestrator runs modules in sequence order.
type Orchestrator struct {
	cfg      *config.Config
	modules  map[string]Module
	panicked bool
	logger   zerolog.Logger
}

func NewOrchestrator(cfg *config.Config, logger zerolog.Logger, modules ...Module) *Orchestrator {
	m := make(map[string]Module, len(modules))
	for _, mod := range modules {
		m[mod.Name()] = mod
	}
	return &Orchestrator{
		cfg:     cfg,
		modules: m,
		logger:  logger.With().Str("component", "pipeline").Logger(),
	}
}

// Execute runs the named modules in order. Disabled modules are
// skipped; a module error is logged and the run continues unless the
// error is fatal, which stops the whole sequence.
func (o *Orchestrator) Execute(ctx context.Context, sequence []string) error {
	for _, name := range sequence {
		if o.panicked {
			o.logger.Error().Str("module", name).Msg("skipped, pipeline aborted")
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		m, ok := o.modules[name]
		if !ok {
			o.panicked = true
			return fmt.Errorf("unknown pipeline module %q", name)
		}
		if !m.Enabled(o.cfg) {
			o.logger.Debug().Str("module", name).Msg("module disabled")
			continue
		}

		o.logger.Info().Str("module", name).Msg("module started")
		if err := m.Run(ctx); err != nil {
			if isFatal(err) {
				o.panicked = true
				o.logger.Error().Err(err).Str("module", name).Msg("fatal module error, aborting pipeline")
				return err
			}
			o.logger.Error().Err(err).Str("module", name).Msg("module failed")
			continue
		}
		o.logger.Info().Str("module", name).Msg("module finished")
	}
	if o.panicked {
		return errors.New("pipeline aborted")
	}
	return nil
}

// Aborted reports whether a fatal error stopped a previous Execute.
func (o *Orchestrator) Aborted() bool { return o.panicked }

// isFatal classifies errors that invalidate the whole run rather than
// a single group or message.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrBadFilterPattern) ||
		errors.Is(err, domain.ErrAuthenticationFailed) ||
		errors.Is(err, context.Canceled)
}

// enabled is the default activation check against the config module map.
func enabled(cfg *config.Config, name string) bool {
	if v, ok := cfg.Pipeline.Modules[name]; ok {
		return v
	}
	return true
}
