//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"limsd/internal/events"
	"limsd/internal/platform/config"
	id "limsd/pkg/domain"
)

func startRedpanda(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.3.1")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err)
	return broker
}

func TestKafkaSinkPublishesEvents(t *testing.T) {
	broker := startRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: []string{broker}, Topic: "lims.events"}
	sink, err := events.NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	defer sink.Close()

	sampleID := id.NewSampleID()
	sent := events.Event{
		Kind:         events.KindSampleStatusChanged,
		OccurredAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		SampleID:     sampleID,
		SampleNumber: "J-2026-0001-01",
		SampleStatus: "RECEIVED",
	}
	require.NoError(t, sink.Deliver(ctx, sent))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	assert.Equal(t, sampleID.String(), string(records[0].Key),
		"records are keyed by sample so per-sample ordering survives partitioning")

	var got events.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, sent.Kind, got.Kind)
	assert.Equal(t, sent.SampleNumber, got.SampleNumber)
	assert.Equal(t, sent.SampleStatus, got.SampleStatus)
}

func TestKafkaSinkCreatesTopicIdempotently(t *testing.T) {
	broker := startRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: []string{broker}, Topic: "lims.events"}

	first, err := events.NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	first.Close()

	// A second connect must tolerate the topic already existing.
	second, err := events.NewKafkaSink(ctx, cfg)
	require.NoError(t, err)
	second.Close()
}
