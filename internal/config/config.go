// Package config loads service configuration from the environment.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/veloevents/service-booking-flow/internal/database"
	"github.com/veloevents/service-booking-flow/internal/domain/form"
)

// JWTConfig holds token signing configuration.
type JWTConfig struct {
	Secret string
}

// KafkaConfig holds broker and consumer-group configuration.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// ProductConfig maps event classifications to fallback participation
// products when neither event meta nor category mapping resolves one.
type ProductConfig struct {
	TDGSlugs      []string
	GuidedSlugs   []string
	TDGProduct    int64
	GuidedProduct int64
}

// ServiceConfig holds all configuration for the booking-flow service.
type ServiceConfig struct {
	Port     string
	AppEnv   string
	DBConfig database.PostgresConfig
	JWT      JWTConfig
	Kafka    KafkaConfig
	Fields   form.FieldMap
	Products ProductConfig
}

// Load reads configuration from the environment, with a .env file as a
// development convenience.
func Load() (*ServiceConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVICE_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "booking_flow")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_GROUP_PREFIX", "veloevents.")
	v.SetDefault("TDG_CATEGORY_SLUGS", "tdg")
	v.SetDefault("GUIDED_CATEGORY_SLUGS", "guided-tours")

	port := v.GetString("SERVICE_PORT")
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	return &ServiceConfig{
		Port:   port,
		AppEnv: v.GetString("APP_ENV"),
		DBConfig: database.PostgresConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		Fields:   loadFieldMap(v),
		Products: loadProductConfig(v),
	}, nil
}

// loadFieldMap applies environment overrides on top of the production form
// layout. The ids are form-specific configuration, never code constants.
func loadFieldMap(v *viper.Viper) form.FieldMap {
	fields := form.DefaultFieldMap()
	override := func(key string, dst *string) {
		if raw := v.GetString(key); raw != "" {
			*dst = raw
		}
	}
	override("FORM_FIELD_EVENT_ID", &fields.EventID)
	override("FORM_FIELD_EVENT_TITLE", &fields.EventTitle)
	override("FORM_FIELD_TOTAL", &fields.Total)
	override("FORM_FIELD_SUBTOTAL", &fields.Subtotal)
	override("FORM_FIELD_COUPON", &fields.CouponCode)
	override("FORM_FIELD_ADMIN_OVERRIDE", &fields.AdminOverride)
	override("FORM_FIELD_RENTAL_TYPE", &fields.RentalType)
	override("FORM_FIELD_FIRST_NAME", &fields.FirstName)
	override("FORM_FIELD_LAST_NAME", &fields.LastName)
	override("FORM_FIELD_EB_PCT", &fields.EBPct)
	if raw := v.GetString("FORM_FIELD_BIKE_CHOICES"); raw != "" {
		fields.BikeChoices = splitList(raw)
	}
	return fields
}

func loadProductConfig(v *viper.Viper) ProductConfig {
	return ProductConfig{
		TDGSlugs:      splitList(v.GetString("TDG_CATEGORY_SLUGS")),
		GuidedSlugs:   splitList(v.GetString("GUIDED_CATEGORY_SLUGS")),
		TDGProduct:    v.GetInt64("TDG_FALLBACK_PRODUCT_ID"),
		GuidedProduct: v.GetInt64("GUIDED_FALLBACK_PRODUCT_ID"),
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
