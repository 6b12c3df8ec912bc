// Package export routes matched messages and operational signals to
// the configured sinks: rolling files, a deduplicated chat notifier
// and the search-index producer.
package export

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"gramwatch/internal/domain"
	"gramwatch/internal/infrastructure/metrics"
)

// Dispatcher fans one payload out to named sinks. A failing sink is
// logged and never blocks its siblings.
type Dispatcher struct {
	sinks  map[string]domain.Sink
	logger zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger, sinks ...domain.Sink) *Dispatcher {
	m := make(map[string]domain.Sink, len(sinks))
	for _, s := range sinks {
		m[s.Name()] = s
	}
	return &Dispatcher{
		sinks:  m,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Register adds or replaces a sink.
func (d *Dispatcher) Register(s domain.Sink) {
	d.sinks[s.Name()] = s
}

// Run stamps the payload with its originating rule and source and sends
// it to each named sink. Unknown names and sink failures are logged and
// skipped.
func (d *Dispatcher) Run(ctx context.Context, sinkNames []string, p *domain.SinkPayload, ruleID, source string) {
	p.RuleID = ruleID
	p.Source = source
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}

	for _, name := range sinkNames {
		sink, ok := d.sinks[name]
		if !ok {
			d.logger.Warn().
				Err(domain.ErrUnknownSink).
				Str("sink", name).
				Str("rule_id", ruleID).
				Msg("payload dropped for unknown sink")
			continue
		}
		err := sink.Send(ctx, p)
		metrics.GetDefaultMetrics().RecordSinkDispatch(name, err)
		if err != nil {
			d.logger.Error().Err(err).
				Str("sink", name).
				Str("rule_id", ruleID).
				Str("kind", p.Kind.String()).
				Msg("sink send failed")
		}
	}
}

// Broadcast sends an operational signal to every registered sink.
func (d *Dispatcher) Broadcast(ctx context.Context, p *domain.SinkPayload, source string) {
	names := make([]string, 0, len(d.sinks))
	for name := range d.sinks {
		names = append(names, name)
	}
	d.Run(ctx, names, p, "", source)
}

// Close shuts every sink down, flushing what they hold.
func (d *Dispatcher) Close(ctx context.Context) {
	for name, sink := range d.sinks {
		if err := sink.Close(ctx); err != nil {
			d.logger.Error().Err(err).Str("sink", name).Msg("sink close failed")
		}
	}
}
