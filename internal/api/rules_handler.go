package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/rules"
)

// RuleEngine is the subset of rules.Engine the HTTP surface depends on.
type RuleEngine interface {
	Rules() []rules.Rule
	Reload() error
}

// RulesHandler serves GET /rules and POST /rules/reload.
type RulesHandler struct {
	engine RuleEngine
	log    zerolog.Logger
}

func NewRulesHandler(engine RuleEngine, log zerolog.Logger) *RulesHandler {
	return &RulesHandler{engine: engine, log: log.With().Str("component", "rules_handler").Logger()}
}

type rulesListResponse struct {
	Rules []rules.Rule `json:"rules"`
}

// List handles GET /rules: introspect the currently loaded rule set.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, rulesListResponse{Rules: h.engine.Rules()})
}

type rulesReloadResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

// Reload handles POST /rules/reload: re-read the rule file from disk and
// atomically publish it. A malformed rule file is a ConfigError at reload
// time and is surfaced as 422; the previously loaded rule set
// stays live since Engine.Reload only swaps on success.
func (h *RulesHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Reload(); err != nil {
		h.log.Error().Err(err).Msg("rules reload failed")
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, rulesReloadResponse{OK: true, Count: len(h.engine.Rules())})
}
