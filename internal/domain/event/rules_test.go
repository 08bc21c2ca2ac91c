package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metaStub backs the config loader with an in-memory meta map.
type metaStub struct {
	meta map[string]string
}

func (s *metaStub) FindByID(ctx context.Context, id int64) (*Event, error) { return nil, ErrNotFound }
func (s *metaStub) Meta(ctx context.Context, eventID int64, key string) (string, error) {
	return s.meta[key], nil
}
func (s *metaStub) SetMeta(ctx context.Context, eventID int64, key, value string) error {
	s.meta[key] = value
	return nil
}

func TestLoadDiscountConfigDefaults(t *testing.T) {
	repo := &metaStub{meta: map[string]string{}}
	cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)

	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.ParticipationEnabled)
	assert.True(t, cfg.RentalEnabled)
	assert.False(t, cfg.GlobalCap.Enabled)
	assert.Empty(t, cfg.Steps)
}

func TestLoadDiscountConfigFlagParsing(t *testing.T) {
	for _, raw := range []string{"1", "yes", "TRUE", "On", " yes "} {
		repo := &metaStub{meta: map[string]string{MetaEBEnabled: raw}}
		cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled, "flag %q", raw)
	}
	for _, raw := range []string{"0", "no", "off", "banana"} {
		repo := &metaStub{meta: map[string]string{MetaEBEnabled: raw}}
		cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
		require.NoError(t, err)
		assert.False(t, cfg.Enabled, "flag %q", raw)
	}
}

func TestLoadDiscountConfigV1Rules(t *testing.T) {
	rules := `{"version":1,"stacking":"before_partner_coupon","basis":"base_total",` +
		`"global_cap":{"enabled":true,"amount":80},` +
		`"steps":[{"min_days_before":30,"type":"percent","value":5,"cap":{"enabled":false,"amount":0}},` +
		`{"min_days_before":90,"type":"fixed","value":20,"cap":{"enabled":true,"amount":100}}]}`
	repo := &metaStub{meta: map[string]string{
		MetaEBEnabled:   "yes",
		MetaEBRulesJSON: rules,
	}}

	cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.GlobalCap.Enabled)
	assert.Equal(t, 80.0, cfg.GlobalCap.Amount)
	require.Len(t, cfg.Steps, 2)
	// Sorted descending by min_days_before.
	assert.Equal(t, 90, cfg.Steps[0].MinDaysBefore)
	assert.Equal(t, StepFixed, cfg.Steps[0].Type)
	assert.Equal(t, 30, cfg.Steps[1].MinDaysBefore)
}

func TestLoadDiscountConfigLegacyArray(t *testing.T) {
	repo := &metaStub{meta: map[string]string{
		MetaEBEnabled:   "1",
		MetaEBRulesJSON: `[{"days":30,"pct":5},{"days":90,"pct":15},{"days":-1,"pct":3},{"days":10,"pct":0}]`,
	}}

	cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)

	require.Len(t, cfg.Steps, 2)
	assert.Equal(t, 90, cfg.Steps[0].MinDaysBefore)
	assert.Equal(t, StepPercent, cfg.Steps[0].Type)
	assert.Equal(t, 15.0, cfg.Steps[0].Value)
	assert.Equal(t, 30, cfg.Steps[1].MinDaysBefore)
}

func TestLoadDiscountConfigMalformedJSON(t *testing.T) {
	repo := &metaStub{meta: map[string]string{
		MetaEBEnabled:   "1",
		MetaEBRulesJSON: `{"steps": not json`,
	}}

	cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Empty(t, cfg.Steps)
}

func TestLoadDiscountConfigLegacyCapMeta(t *testing.T) {
	repo := &metaStub{meta: map[string]string{
		MetaEBEnabled: "1",
		MetaEBCap:     "50",
	}}
	cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)
	assert.True(t, cfg.GlobalCap.Enabled)
	assert.Equal(t, 50.0, cfg.GlobalCap.Amount)

	// Rules JSON global_cap takes precedence over the deprecated meta.
	repo.meta[MetaEBRulesJSON] = `{"version":1,"global_cap":{"enabled":true,"amount":80},"steps":[]}`
	cfg, err = LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.GlobalCap.Amount)
}

func TestLoadDiscountConfigRejectsInvalidSteps(t *testing.T) {
	rules := `{"version":1,"steps":[` +
		`{"min_days_before":-5,"type":"percent","value":10},` +
		`{"min_days_before":30,"type":"percent","value":0},` +
		`{"min_days_before":30,"type":"bogus","value":5}]}`
	repo := &metaStub{meta: map[string]string{
		MetaEBEnabled:   "1",
		MetaEBRulesJSON: rules,
	}}

	cfg, err := LoadDiscountConfig(context.Background(), repo, 1)
	require.NoError(t, err)
	require.Len(t, cfg.Steps, 1)
	// Unknown type defaults to percent.
	assert.Equal(t, StepPercent, cfg.Steps[0].Type)
	assert.Equal(t, 5.0, cfg.Steps[0].Value)
}

func TestEncodeRulesRoundTrip(t *testing.T) {
	doc := RulesDocument{
		Version:   1,
		Currency:  "EUR",
		GlobalCap: Cap{Enabled: true, Amount: 80},
		Steps: []Step{
			{MinDaysBefore: 30, Type: StepPercent, Value: 5},
			{MinDaysBefore: 90, Type: StepPercent, Value: 15, Cap: Cap{Enabled: true, Amount: 100}},
		},
	}

	raw, err := EncodeRules(doc)
	require.NoError(t, err)

	var persisted map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Equal(t, "before_partner_coupon", persisted["stacking"])
	assert.Equal(t, "base_total", persisted["basis"])

	back, ok := DecodeRulesDocument(raw)
	require.True(t, ok)
	assert.Equal(t, "EUR", back.Currency)
	require.Len(t, back.Steps, 2)
	// Persisted sorted descending.
	assert.Equal(t, 90, back.Steps[0].MinDaysBefore)
	assert.Equal(t, doc.GlobalCap, back.GlobalCap)

	again, err := EncodeRules(back)
	require.NoError(t, err)
	assert.JSONEq(t, raw, again)
}
