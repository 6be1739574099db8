// Package ingest is the single funnel every transport (UDP, HTTP, MQTT)
// feeds through: validate-or-adapt, assign sequence, fan out, evaluate
// rules, dedup, and fan out again. The methods here are plain synchronous
// calls — the hub and recorder own their own goroutines downstream, so
// nothing in this package blocks on I/O.
package ingest

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/adapters"
	"github.com/snarg/zmeta/internal/dedup"
	"github.com/snarg/zmeta/internal/metrics"
	"github.com/snarg/zmeta/internal/rules"
	"github.com/snarg/zmeta/internal/schema"
)

// Broadcaster is the subset of hub.Hub the pipeline depends on.
type Broadcaster interface {
	Broadcast(message string)
}

// Recorder is the subset of recorder.Recorder the pipeline depends on.
type Recorder interface {
	Enqueue(line string)
}

// Pipeline wires together the collaborators a single ingested payload
// passes through. It holds no per-payload state itself; all shared state
// lives in its collaborators, each of which owns its own concurrency.
type Pipeline struct {
	hub      Broadcaster
	recorder Recorder
	rules    *rules.Engine
	dedup    *dedup.Deduper
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// New constructs a Pipeline from its collaborators.
func New(hub Broadcaster, rec Recorder, ruleEngine *rules.Engine, deduper *dedup.Deduper, reg *metrics.Registry, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		hub:      hub,
		recorder: rec,
		rules:    ruleEngine,
		dedup:    deduper,
		metrics:  reg,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Ingest validates or adapts raw into a canonical event, assigns a
// sequence number when absent, and dispatches it. context identifies the
// originating transport ("udp", "http", "mqtt") for logging only.
func (p *Pipeline) Ingest(raw []byte, context string) (*schema.Event, error) {
	evt, adapterName, err := p.validateOrAdapt(raw)
	if err != nil {
		// Rejection is the caller's to account for: the UDP consumer counts
		// it as a drop, the HTTP handler turns it into a 422 client error.
		return nil, err
	}

	if evt.Sequence == nil {
		seq := p.metrics.NextSequence()
		evt.Sequence = &seq
	}
	p.metrics.NoteAdapter(adapterName)

	p.dispatch(evt, context)
	return evt, nil
}

// validateOrAdapt tries strict parsing first and only consults the adapter
// registry on failure: a native payload never pays the adapter-matching
// cost.
func (p *Pipeline) validateOrAdapt(raw []byte) (*schema.Event, string, error) {
	evt, strictErr := schema.ParseStrict(raw)
	if strictErr == nil {
		return evt, "native", nil
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, "", strictErr
	}

	adapted, name, ok := adapters.Adapt(asMap)
	if !ok {
		// Every adapter declined; the original strict-validation error is
		// surfaced
		return nil, "", strictErr
	}
	return adapted, name, nil
}

// dispatch broadcasts and records the validated event, then evaluates
// rules against it inside a fault boundary: a panic or error in rule
// evaluation must never take down the ingest path for every other sensor.
func (p *Pipeline) dispatch(evt *schema.Event, context string) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to marshal validated event")
		return
	}
	data := string(payload)

	p.hub.Broadcast(data)
	p.recorder.Enqueue(data)
	p.metrics.NoteValidated()

	alerts := p.evaluateRulesSafely(payload, context)
	p.publishAlerts(alerts)
}

// evaluateRulesSafely recovers from a panicking rule predicate so one
// malformed event can never stop the rule engine from serving the rest.
func (p *Pipeline) evaluateRulesSafely(payload []byte, context string) (alerts []rules.Alert) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("context", context).Msg("rule evaluation panicked")
			alerts = nil
		}
	}()

	var asMap map[string]any
	if err := json.Unmarshal(payload, &asMap); err != nil {
		p.log.Error().Err(err).Msg("failed to re-decode event for rule evaluation")
		return nil
	}
	return p.rules.Evaluate(asMap)
}

func (p *Pipeline) publishAlerts(alerts []rules.Alert) {
	for _, a := range alerts {
		d := dedup.Alert{
			Rule:     a.Rule,
			SensorID: a.SensorID,
			Severity: a.Severity,
			Lat:      a.Lat,
			Lon:      a.Lon,
		}
		if !p.dedup.ShouldSend(d) {
			p.metrics.NoteSuppressed()
			continue
		}

		payload, err := json.Marshal(a)
		if err != nil {
			p.log.Error().Err(err).Msg("failed to marshal alert")
			continue
		}
		p.hub.Broadcast(string(payload))
		p.metrics.NoteAlert()
	}
}
