package application

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/veloevents/service-booking-flow/internal/domain/event"
)

// ErrInvalidRules rejects an admin rules document that cannot be persisted.
var ErrInvalidRules = errors.New("invalid early booking rules")

// EventConfig is the admin view of one event's early-booking setup.
type EventConfig struct {
	EventID              int64               `json:"event_id"`
	Enabled              bool                `json:"enabled"`
	ParticipationEnabled bool                `json:"participation_enabled"`
	RentalEnabled        bool                `json:"rental_enabled"`
	Rules                event.RulesDocument `json:"rules"`
}

// EventConfigService reads and writes per-event early-booking configuration
// through event meta, keeping the rules JSON schema stable across
// round-trips.
type EventConfigService struct {
	events event.Repository
	logger *zap.Logger
}

// NewEventConfigService creates an EventConfigService.
func NewEventConfigService(events event.Repository, logger *zap.Logger) *EventConfigService {
	return &EventConfigService{events: events, logger: logger}
}

// Get returns the event's current configuration with normalized steps.
func (s *EventConfigService) Get(ctx context.Context, eventID int64) (EventConfig, error) {
	if _, err := s.events.FindByID(ctx, eventID); err != nil {
		return EventConfig{}, err
	}
	cfg, err := event.LoadDiscountConfig(ctx, s.events, eventID)
	if err != nil {
		return EventConfig{}, err
	}
	doc := event.RulesDocument{
		Version:   cfg.Version,
		Stacking:  event.RulesStackingBeforePartnerCoupon,
		Basis:     event.RulesBasisBaseTotal,
		GlobalCap: cfg.GlobalCap,
		Steps:     cfg.Steps,
	}
	if raw, err := s.events.Meta(ctx, eventID, event.MetaEBRulesJSON); err == nil && raw != "" {
		if stored, ok := event.DecodeRulesDocument(raw); ok {
			// Preserve stored currency and stacking verbatim.
			doc.Stacking = stored.Stacking
			doc.Basis = stored.Basis
			doc.Currency = stored.Currency
		}
	}
	return EventConfig{
		EventID:              eventID,
		Enabled:              cfg.Enabled,
		ParticipationEnabled: cfg.ParticipationEnabled,
		RentalEnabled:        cfg.RentalEnabled,
		Rules:                doc,
	}, nil
}

// Update validates and persists an admin configuration write. Steps with a
// negative lead time or non-positive value are rejected outright rather
// than silently dropped, this is an explicit admin write.
func (s *EventConfigService) Update(ctx context.Context, in EventConfig) (EventConfig, error) {
	if _, err := s.events.FindByID(ctx, in.EventID); err != nil {
		return EventConfig{}, err
	}
	for _, step := range in.Rules.Steps {
		if step.MinDaysBefore < 0 || step.Value <= 0 {
			return EventConfig{}, ErrInvalidRules
		}
		if step.Type != event.StepPercent && step.Type != event.StepFixed {
			return EventConfig{}, ErrInvalidRules
		}
	}

	encoded, err := event.EncodeRules(in.Rules)
	if err != nil {
		return EventConfig{}, ErrInvalidRules
	}

	writes := map[string]string{
		event.MetaEBEnabled:              flagString(in.Enabled),
		event.MetaEBParticipationEnabled: flagString(in.ParticipationEnabled),
		event.MetaEBRentalEnabled:        flagString(in.RentalEnabled),
		event.MetaEBRulesJSON:            encoded,
	}
	if in.Rules.GlobalCap.Enabled && in.Rules.GlobalCap.Amount > 0 {
		writes[event.MetaEBCap] = strconv.FormatFloat(in.Rules.GlobalCap.Amount, 'f', 2, 64)
	}
	for key, value := range writes {
		if err := s.events.SetMeta(ctx, in.EventID, key, value); err != nil {
			return EventConfig{}, err
		}
	}

	s.logger.Info("event early booking config updated",
		zap.Int64("event_id", in.EventID),
		zap.Bool("enabled", in.Enabled),
		zap.Int("steps", len(in.Rules.Steps)),
	)
	return s.Get(ctx, in.EventID)
}

func flagString(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
