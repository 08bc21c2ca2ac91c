//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/veloevents/service-booking-flow/internal/application"
	bookingEvents "github.com/veloevents/service-booking-flow/internal/events"
	"github.com/veloevents/service-booking-flow/internal/kafka"
	"github.com/veloevents/service-booking-flow/internal/repository"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// ledgerStack holds wired-up ledger components.
type ledgerStack struct {
	Service         *application.LedgerService
	Consumer        *bookingEvents.OrderEventConsumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	// Start PostgreSQL container with log-based wait strategy.
	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_booking",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_booking sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.AutoMigrate(
		&repository.EventModel{},
		&repository.EventMetaModel{},
		&repository.ProductModel{},
		&repository.PartnerUserModel{},
		&repository.CouponModel{},
		&repository.EntryModel{},
		&repository.CartItemModel{},
		&repository.CartCouponModel{},
		&repository.OrderModel{},
		&repository.OrderMetaModel{},
		&repository.OrderItemModel{},
		&repository.OrderItemMetaModel{},
	))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers,
		bookingEvents.TopicCommerceOrders,
		application.TopicOrderEvents,
		application.TopicCartEvents,
	)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupLedgerStack wires up the ledger service and its order event consumer.
func setupLedgerStack(t *testing.T, db *gorm.DB, brokers []string) *ledgerStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	orderRepo := repository.NewGormOrderRepository(db)
	userStore := repository.NewGormUserStore(db)
	couponStore := repository.NewGormCouponStore(db)
	producer := kafka.NewProducer(brokers, "service-booking-flow-test", logger)
	ledgerSvc := application.NewLedgerService(orderRepo, userStore, couponStore, producer, logger)

	groupID := fmt.Sprintf("test-booking-%s", uuid.New().String()[:8])
	consumer := bookingEvents.NewOrderEventConsumer(brokers, groupID, ledgerSvc, logger)

	return &ledgerStack{
		Service:         ledgerSvc,
		Consumer:        consumer,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedLedgerOrder inserts an order with two snapshot-bearing booking lines:
// a 500 participation line and a 200 rental line, each with a 10 percent
// early booking discount already distributed.
func seedLedgerOrder(t *testing.T, db *gorm.DB, couponCodes string) int64 {
	t.Helper()
	now := time.Now().UTC()

	order := repository.OrderModel{CouponCodes: couponCodes, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Create(&order).Error, "failed to seed order")

	part := repository.OrderItemModel{OrderID: order.ID, Quantity: 1, Subtotal: 450, CreatedAt: now}
	require.NoError(t, db.Create(&part).Error)
	rental := repository.OrderItemModel{OrderID: order.ID, Quantity: 1, Subtotal: 180, CreatedAt: now}
	require.NoError(t, db.Create(&rental).Error)

	seedItemMeta(t, db, part.ID, map[string]string{
		"_event_id":          "10",
		"_entry_id":          "55",
		"_eb_base_price":     "500.00",
		"_eb_amount":         "50.00",
		"_eb_pct":            "10",
		"_eb_days_before":    "42",
		"_eb_event_start_ts": "1772444800",
	})
	seedItemMeta(t, db, rental.ID, map[string]string{
		"_event_id":      "10",
		"_entry_id":      "55",
		"_eb_base_price": "200.00",
		"_eb_amount":     "20.00",
		"_eb_pct":        "10",
	})

	return order.ID
}

func seedItemMeta(t *testing.T, db *gorm.DB, itemID int64, meta map[string]string) {
	t.Helper()
	for key, value := range meta {
		row := repository.OrderItemMetaModel{ItemID: itemID, MetaKey: key, MetaValue: value}
		require.NoError(t, db.Create(&row).Error, "failed to seed item meta")
	}
}

// seedPartner inserts a partner account and its percent coupon.
func seedPartner(t *testing.T, db *gorm.DB, code string, discountPct, commissionRate float64) {
	t.Helper()
	now := time.Now().UTC()
	user := repository.PartnerUserModel{
		Email:          fmt.Sprintf("%s@example.com", code),
		DiscountCode:   code,
		CommissionRate: commissionRate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(&user).Error, "failed to seed partner user")

	coupon := repository.CouponModel{
		Code:         code,
		DiscountType: "percent",
		Amount:       discountPct,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, db.Create(&coupon).Error, "failed to seed coupon")
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, eventType, key string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, "test-harness", logger)
	defer func() { _ = producer.Close() }()

	err := producer.Publish(context.Background(), topic, eventType, key, data)
	require.NoError(t, err, "failed to publish event")
}

// waitForOrderMeta polls the order_meta table until the key holds the
// expected value.
func waitForOrderMeta(t *testing.T, db *gorm.DB, orderID int64, key, expected string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		var row repository.OrderMetaModel
		err := db.Where("order_id = ? AND meta_key = ?", orderID, key).First(&row).Error
		return err == nil && row.MetaValue == expected
	}, timeout, 200*time.Millisecond, "order %d meta %q did not reach %q", orderID, key, expected)
}

// orderMetaValue reads one order meta value, "" when absent.
func orderMetaValue(t *testing.T, db *gorm.DB, orderID int64, key string) string {
	t.Helper()
	var row repository.OrderMetaModel
	if err := db.Where("order_id = ? AND meta_key = ?", orderID, key).First(&row).Error; err != nil {
		return ""
	}
	return row.MetaValue
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
