package convogen

import (
	"encoding/json"
	"time"
)

// ──────────────────────────────────────────────
// Dataset — the aggregate output of one generation run
// ──────────────────────────────────────────────

// RunParams records the generation parameters in the output metadata.
type RunParams struct {
	Iterations  int     `json:"iterations"`
	MinTurns    int     `json:"min_turns"`
	MaxTurns    int     `json:"max_turns"`
	Policy      string  `json:"policy,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Seed        int64   `json:"seed,omitempty"`
}

// Metadata describes how a dataset was generated.
type Metadata struct {
	GenerationTimestamp string    `json:"generation_timestamp"`
	ModelsUsed          []string  `json:"models_used"`
	Parameters          RunParams `json:"parameters"`
}

// Dataset is the persisted document: metadata plus every conversation.
// Owned by the driver; the loop only ever mutates the single in-flight
// ConversationResult it appended.
type Dataset struct {
	Metadata      Metadata              `json:"metadata"`
	Conversations []*ConversationResult `json:"conversations"`
}

// NewDataset creates an empty dataset stamped with the current time.
func NewDataset(models []string, params RunParams, now time.Time) *Dataset {
	return &Dataset{
		Metadata: Metadata{
			GenerationTimestamp: now.Format(time.RFC3339),
			ModelsUsed:          models,
			Parameters:          params,
		},
		Conversations: []*ConversationResult{},
	}
}

// Append adds a conversation slot. Called before the loop starts so
// incremental persistence always covers the in-flight conversation.
func (d *Dataset) Append(r *ConversationResult) {
	d.Conversations = append(d.Conversations, r)
}

// Marshal serializes the full dataset. Struct field order is fixed, so
// an unchanged dataset marshals to byte-identical output.
func (d *Dataset) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
