// Package rules loads a YAML rule file and evaluates canonical events
// against it to produce alerts. The loaded set is immutable and swapped
// atomically on reload, so evaluation never sees a half-updated list.
package rules

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Condition is one predicate within a rule. Exactly one of Eq/In/Between/
// GTE/LTE/Polygon should be set; an empty condition matches nothing.
type Condition struct {
	Field   string       `yaml:"field" json:"field"`
	Eq      any          `yaml:"eq" json:"eq,omitempty"`
	In      []any        `yaml:"in" json:"in,omitempty"`
	Between []float64    `yaml:"between" json:"between,omitempty"`
	GTE     *float64     `yaml:"gte" json:"gte,omitempty"`
	LTE     *float64     `yaml:"lte" json:"lte,omitempty"`
	Polygon [][2]float64 `yaml:"polygon" json:"polygon,omitempty"`
}

// Rule is one entry in the loaded rule file.
type Rule struct {
	Name            string      `yaml:"name" json:"name"`
	Enabled         *bool       `yaml:"enabled" json:"enabled,omitempty"`
	Severity        string      `yaml:"severity" json:"severity"`
	Message         string      `yaml:"message" json:"message"`
	Conditions      []Condition `yaml:"conditions" json:"conditions,omitempty"`
	AnyMatch        bool        `yaml:"any" json:"any"`
	CooldownSeconds *float64    `yaml:"cooldown_seconds" json:"cooldown_seconds,omitempty"`
}

func (r Rule) enabled() bool {
	return r.Enabled == nil || *r.Enabled
}

func (r Rule) cooldown() time.Duration {
	if r.CooldownSeconds == nil {
		return 0
	}
	return time.Duration(*r.CooldownSeconds * float64(time.Second))
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Alert is produced when a rule matches. Its wire shape is
// {type, rule, severity, message, timestamp, loc:{lat,lon}, sensor_id,
// modality} — note the nested "loc", unlike dedup.Alert's flat Lat/Lon
// which only exists for building the suppression key.
type Alert struct {
	Type      string    `json:"type"`
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Loc       AlertLoc  `json:"loc"`
	SensorID  string    `json:"sensor_id"`
	Modality  string    `json:"modality"`

	Lat *float64 `json:"-"`
	Lon *float64 `json:"-"`
}

// AlertLoc is the alert's nested location. The object is always present;
// an absent lat or lon is rendered individually as null.
type AlertLoc struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// compiledSet is one loaded, immutable rule list plus its own cooldown
// state. A reload builds a fresh compiledSet, which is why cooldowns and
// fire counts reset only on explicit reload.
type compiledSet struct {
	rules []Rule

	mu        sync.Mutex
	lastFire  map[string]time.Time
	fireCount map[string]int64
}

func newCompiledSet(rules []Rule) *compiledSet {
	return &compiledSet{
		rules:     rules,
		lastFire:  make(map[string]time.Time),
		fireCount: make(map[string]int64),
	}
}

// Engine holds an atomically swappable rule set for hot reload.
type Engine struct {
	path    string
	current atomic.Pointer[compiledSet]
}

// NewEngine constructs an Engine with an empty rule set; call Load or
// Reload to populate it.
func NewEngine(path string) *Engine {
	e := &Engine{path: path}
	e.current.Store(newCompiledSet(nil))
	return e
}

// Load reads the rule file at construction time. A missing file is treated
// as an empty rule set rather than an error.
func (e *Engine) Load() error {
	return e.Reload()
}

// Reload re-reads the rule file from disk and atomically publishes a fresh
// compiled set. Cooldown and fire-count state belongs to the compiled set,
// so a reload starts both from zero.
func (e *Engine) Reload() error {
	rules, err := loadRuleFile(e.path)
	if err != nil {
		return err
	}
	e.current.Store(newCompiledSet(rules))
	return nil
}

func loadRuleFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var parsed ruleFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	enabled := make([]Rule, 0, len(parsed.Rules))
	for _, r := range parsed.Rules {
		if !r.enabled() {
			continue
		}
		if r.Severity == "" {
			r.Severity = "info"
		}
		enabled = append(enabled, r)
	}
	return enabled, nil
}

// Rules returns the currently loaded rule list, for the GET /rules
// introspection endpoint.
func (e *Engine) Rules() []Rule {
	return e.current.Load().rules
}

// Evaluate runs every loaded rule against event (as a generic field tree)
// in declaration order, applying AND/OR combination and per-rule cooldown.
// It never panics: malformed numeric operands simply evaluate false.
func (e *Engine) Evaluate(event map[string]any) []Alert {
	set := e.current.Load()
	now := time.Now()

	var alerts []Alert
	for _, r := range set.rules {
		results := make([]bool, len(r.Conditions))
		for i, c := range r.Conditions {
			results[i] = evalCondition(c, getField(event, c.Field))
		}
		if !combine(results, r.AnyMatch) {
			continue
		}

		if cooldown := r.cooldown(); cooldown > 0 {
			set.mu.Lock()
			last, seen := set.lastFire[r.Name]
			if seen && now.Sub(last) < cooldown {
				set.mu.Unlock()
				continue
			}
			set.lastFire[r.Name] = now
			set.fireCount[r.Name]++
			set.mu.Unlock()
		} else {
			set.mu.Lock()
			set.fireCount[r.Name]++
			set.mu.Unlock()
		}

		alerts = append(alerts, buildAlert(r, event, now))
	}
	return alerts
}

// combine folds condition results with AND by default, OR when anyMatch is
// set. A rule with no conditions matches under AND (vacuous truth), so a
// conditionless rule is a valid way to author an unconditional alert,
// typically paired with a cooldown.
func combine(results []bool, anyMatch bool) bool {
	if anyMatch {
		for _, ok := range results {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func buildAlert(r Rule, event map[string]any, now time.Time) Alert {
	loc, _ := event["location"].(map[string]any)
	a := Alert{
		Type:      "alert",
		Rule:      r.Name,
		Severity:  r.Severity,
		Message:   r.Message,
		Timestamp: now,
		SensorID:  stringField(event["sensor_id"]),
		Modality:  stringField(event["modality"]),
	}
	if loc != nil {
		if v, ok := toFloat(loc["lat"]); ok {
			a.Lat = &v
			a.Loc.Lat = &v
		}
		if v, ok := toFloat(loc["lon"]); ok {
			a.Lon = &v
			a.Loc.Lon = &v
		}
	}
	return a
}

func stringField(v any) string {
	s, _ := v.(string)
	return s
}

// getField walks a dotted path through nested maps.
func getField(obj map[string]any, path string) any {
	cur := any(obj)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			part := path[start:i]
			asMap, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			v, present := asMap[part]
			if !present {
				return nil
			}
			cur = v
			start = i + 1
		}
	}
	return cur
}
