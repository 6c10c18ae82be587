package convogen

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func driverSeeds() *SeedStore {
	return &SeedStore{
		Scenarios: map[string][]Scenario{
			"Career Advice": {*testScenario()},
		},
		Personas: []Persona{{Type: "Pragmatist", Traits: []string{"Direct"}, Weight: 1}},
		Styles: StyleCatalog{
			DimensionMessageLength: {Variations: map[string]StyleVariation{
				"medium": {Weight: 1, Description: "moderate detail", MinWords: 20, MaxWords: 40},
			}},
		},
		Topics: TopicCatalog{},
	}
}

func newTestDriver(gw Gateway, sink Sink, iterations int) *Driver {
	gen := NewGenerator(gw, driverSeeds(), continuePolicy(), rand.New(rand.NewSource(7)), nil)
	return NewDriver(gen, sink, DriverConfig{
		Iterations: iterations,
		MinTurns:   2,
		MaxTurns:   2,
		ChatModel:  "test-model",
		Models:     []string{"test-model"},
		Policy:     PolicyReflection,
	}, nil)
}

func TestDriver_GeneratesConfiguredIterations(t *testing.T) {
	gw := &scriptedGateway{}
	sink := &recordingSink{}
	d := newTestDriver(gw, sink, 3)

	ds, stats, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.Conversations, 3)
	assert.Equal(t, int64(3), stats.Conversations.Load())
	assert.Equal(t, int64(6), stats.TotalTurns.Load())
	assert.Equal(t, int64(0), stats.Errored.Load())
	assert.Equal(t, map[string]int{EndingMaxTurns: 3}, stats.EndingReasons())

	for _, conv := range ds.Conversations {
		assert.Equal(t, "Career Advice", conv.Category)
		assert.Equal(t, 2, conv.Turns)
		assert.Len(t, conv.Conversation, 4)
	}

	// Persisted at least once per exchange plus the final snapshot.
	assert.Greater(t, sink.calls, 3)
}

func TestDriver_MetadataRecordsRunParameters(t *testing.T) {
	d := newTestDriver(&scriptedGateway{}, nil, 1)
	ds, _, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"test-model"}, ds.Metadata.ModelsUsed)
	assert.Equal(t, 1, ds.Metadata.Parameters.Iterations)
	assert.Equal(t, 2, ds.Metadata.Parameters.MinTurns)
	assert.Equal(t, 2, ds.Metadata.Parameters.MaxTurns)
	assert.Equal(t, PolicyReflection, ds.Metadata.Parameters.Policy)
	assert.NotEmpty(t, ds.Metadata.GenerationTimestamp)
}

func TestDriver_ErroredConversationDoesNotAbortBatch(t *testing.T) {
	// Three model calls per conversation; call 5 is the chatbot reply of
	// the second conversation.
	gw := &scriptedGateway{failAt: 5}
	d := newTestDriver(gw, nil, 3)

	ds, stats, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.Conversations, 3)
	assert.Equal(t, int64(3), stats.Conversations.Load())
	assert.Equal(t, int64(1), stats.Errored.Load())
	assert.Equal(t, EndingError, ds.Conversations[1].EndingReason)
	assert.Equal(t, EndingMaxTurns, ds.Conversations[0].EndingReason)
	assert.Equal(t, EndingMaxTurns, ds.Conversations[2].EndingReason)
}

func TestDriver_PersistenceFailureIsFatal(t *testing.T) {
	sinkErr := errors.New("disk full")
	sink := &recordingSink{err: sinkErr}
	d := newTestDriver(&scriptedGateway{}, sink, 3)

	ds, stats, err := d.Run(context.Background())
	assert.ErrorIs(t, err, sinkErr)
	assert.Len(t, ds.Conversations, 1)
	assert.Equal(t, int64(0), stats.Conversations.Load())
}

func TestDriver_EmptyCatalogIsConfigurationError(t *testing.T) {
	gen := NewGenerator(&scriptedGateway{}, &SeedStore{
		Scenarios: map[string][]Scenario{},
		Topics:    TopicCatalog{},
	}, continuePolicy(), rand.New(rand.NewSource(1)), nil)
	d := NewDriver(gen, nil, DriverConfig{Iterations: 1, MinTurns: 2, MaxTurns: 2, ChatModel: "m"}, nil)

	_, _, err := d.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestDriver_ContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDriver(&scriptedGateway{}, nil, 5)
	ds, _, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ds.Conversations)
}

func TestRunStats_PrintSummarizesRun(t *testing.T) {
	stats := newRunStats()
	stats.record(&ConversationResult{Turns: 5, EndingReason: EndingMaxTurns})
	stats.record(&ConversationResult{Turns: 3, EndingReason: EndingUserEnded})
	stats.record(&ConversationResult{Turns: 1, EndingReason: EndingError})

	var buf bytes.Buffer
	stats.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "Total conversations: 3")
	assert.Contains(t, out, "Total turns: 9")
	assert.Contains(t, out, "Average turns per conversation: 3.00")
	assert.Contains(t, out, EndingMaxTurns+": 1")
	assert.Contains(t, out, EndingError+": 1")
}
