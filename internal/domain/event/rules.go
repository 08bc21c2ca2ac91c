package event

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// StepType is the discount kind of a rule step.
type StepType string

const (
	StepPercent StepType = "percent"
	StepFixed   StepType = "fixed"
)

// Cap limits a discount amount in currency units.
type Cap struct {
	Enabled bool    `json:"enabled"`
	Amount  float64 `json:"amount"`
}

// Step is one early-booking rule: bookings made at least MinDaysBefore days
// ahead of the event start receive the step's discount.
type Step struct {
	MinDaysBefore int      `json:"min_days_before"`
	Type          StepType `json:"type"`
	Value         float64  `json:"value"`
	Cap           Cap      `json:"cap"`
}

// DiscountConfig is the canonical in-memory early-booking configuration for
// one event. Steps are always sorted descending by MinDaysBefore; step
// selection depends on that ordering.
type DiscountConfig struct {
	Enabled              bool
	ParticipationEnabled bool
	RentalEnabled        bool
	Version              int
	GlobalCap            Cap
	Steps                []Step
}

// RulesDocument is the persisted schema v1 of the rules JSON. It must
// round-trip through the admin API without loss.
type RulesDocument struct {
	Version   int    `json:"version"`
	Stacking  string `json:"stacking"`
	Basis     string `json:"basis"`
	Currency  string `json:"currency"`
	GlobalCap Cap    `json:"global_cap"`
	Steps     []Step `json:"steps"`
}

const (
	RulesStackingBeforePartnerCoupon = "before_partner_coupon"
	RulesBasisBaseTotal              = "base_total"
)

// LoadDiscountConfig builds the canonical config from event meta. Absent
// meta yields the documented defaults: the master switch defaults to off,
// the two scope switches default to on. A rules JSON that fails to decode
// leaves the event with zero steps rather than failing the caller.
func LoadDiscountConfig(ctx context.Context, repo Repository, eventID int64) (DiscountConfig, error) {
	cfg := DiscountConfig{
		Enabled:              false,
		ParticipationEnabled: true,
		RentalEnabled:        true,
		Version:              1,
	}

	enabled, err := repo.Meta(ctx, eventID, MetaEBEnabled)
	if err != nil {
		return cfg, err
	}
	if enabled != "" {
		cfg.Enabled = parseFlag(enabled)
	}

	// Deprecated global cap meta. The rules JSON may override it below.
	if capRaw, err := repo.Meta(ctx, eventID, MetaEBCap); err == nil && capRaw != "" {
		if amt, err := strconv.ParseFloat(strings.TrimSpace(capRaw), 64); err == nil {
			cfg.GlobalCap = Cap{Enabled: true, Amount: amt}
		}
	}

	rulesRaw, err := repo.Meta(ctx, eventID, MetaEBRulesJSON)
	if err != nil {
		return cfg, err
	}
	if rulesRaw != "" {
		if doc, ok := decodeRules(rulesRaw); ok {
			cfg.Version = doc.Version
			if doc.GlobalCap != nil {
				cfg.GlobalCap = *doc.GlobalCap
			}
			cfg.Steps = doc.Steps
		}
	}

	if p, err := repo.Meta(ctx, eventID, MetaEBParticipationEnabled); err == nil && p != "" {
		cfg.ParticipationEnabled = parseFlag(p)
	}
	if r, err := repo.Meta(ctx, eventID, MetaEBRentalEnabled); err == nil && r != "" {
		cfg.RentalEnabled = parseFlag(r)
	}

	return cfg, nil
}

// parseFlag treats 1/yes/true/on (case-insensitive) as true, anything else
// as false.
func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "yes", "true", "on":
		return true
	}
	return false
}

// decodedRules is the normalized result of decoding either rules shape.
type decodedRules struct {
	Version   int
	GlobalCap *Cap
	Steps     []Step
}

// decodeRules accepts both the v1 object schema and the legacy flat
// [{days,pct}] array, upgrading the latter in-memory to percent steps. The
// legacy shape is never written back. Returns ok=false on malformed JSON.
func decodeRules(raw string) (decodedRules, bool) {
	var probe struct {
		Version   *int              `json:"version"`
		GlobalCap *json.RawMessage  `json:"global_cap"`
		Steps     []json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err == nil && probe.Steps != nil {
		out := decodedRules{Version: 1}
		if probe.Version != nil {
			out.Version = *probe.Version
		}
		if probe.GlobalCap != nil {
			var c Cap
			if err := json.Unmarshal(*probe.GlobalCap, &c); err == nil {
				out.GlobalCap = &c
			}
		}
		for _, rawStep := range probe.Steps {
			var s Step
			if err := json.Unmarshal(rawStep, &s); err != nil {
				continue
			}
			if s.MinDaysBefore < 0 || s.Value <= 0 {
				continue
			}
			if s.Type != StepPercent && s.Type != StepFixed {
				s.Type = StepPercent
			}
			out.Steps = append(out.Steps, s)
		}
		sortSteps(out.Steps)
		return out, true
	}

	// Legacy array shape.
	var legacy []map[string]any
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		return decodedRules{}, false
	}
	out := decodedRules{Version: 1}
	for _, row := range legacy {
		days, okDays := numeric(row["days"])
		pct, okPct := numeric(row["pct"])
		if !okDays || !okPct {
			continue
		}
		if int(days) < 0 || pct <= 0 {
			continue
		}
		out.Steps = append(out.Steps, Step{
			MinDaysBefore: int(days),
			Type:          StepPercent,
			Value:         pct,
		})
	}
	sortSteps(out.Steps)
	return out, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func sortSteps(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].MinDaysBefore > steps[j].MinDaysBefore
	})
}

// EncodeRules renders a v1 rules document with steps sorted descending, the
// persisted and round-trippable form.
func EncodeRules(doc RulesDocument) (string, error) {
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.Stacking == "" {
		doc.Stacking = RulesStackingBeforePartnerCoupon
	}
	if doc.Basis == "" {
		doc.Basis = RulesBasisBaseTotal
	}
	sorted := make([]Step, len(doc.Steps))
	copy(sorted, doc.Steps)
	sortSteps(sorted)
	doc.Steps = sorted
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeRulesDocument parses a persisted v1 rules document for the admin
// API. Malformed steps are dropped the same way the config loader drops
// them.
func DecodeRulesDocument(raw string) (RulesDocument, bool) {
	decoded, ok := decodeRules(raw)
	if !ok {
		return RulesDocument{}, false
	}
	doc := RulesDocument{
		Version:  decoded.Version,
		Stacking: RulesStackingBeforePartnerCoupon,
		Basis:    RulesBasisBaseTotal,
		Steps:    decoded.Steps,
	}
	if decoded.GlobalCap != nil {
		doc.GlobalCap = *decoded.GlobalCap
	}
	var full RulesDocument
	if err := json.Unmarshal([]byte(raw), &full); err == nil {
		if full.Stacking != "" {
			doc.Stacking = full.Stacking
		}
		if full.Basis != "" {
			doc.Basis = full.Basis
		}
		doc.Currency = full.Currency
	}
	return doc, true
}
