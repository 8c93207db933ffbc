// Package nostr builds and recognises the NIP-01 client/relay frames used by
// the request benchmark.
package nostr

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	LabelReq   = "REQ"
	LabelClose = "CLOSE"
	LabelEOSE  = "EOSE"
)

// Filter is the subscription filter sent with every REQ
type Filter struct {
	Kinds []int `json:"kinds,omitempty" mapstructure:"kinds" yaml:"kinds,omitempty"`
	Limit int   `json:"limit,omitempty" mapstructure:"limit" yaml:"limit,omitempty"`
}

// NewSubscriptionID returns a random 32 character subscription id
func NewSubscriptionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildRequest encodes ["REQ", subID, filter]
func BuildRequest(subID string, filter Filter) ([]byte, error) {
	if subID == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	msg, err := json.Marshal([]any{LabelReq, subID, filter})
	if err != nil {
		return nil, fmt.Errorf("failed to encode REQ: %w", err)
	}
	return msg, nil
}

// BuildClose encodes ["CLOSE", subID]
func BuildClose(subID string) ([]byte, error) {
	if subID == "" {
		return nil, fmt.Errorf("subscription id is required")
	}
	msg, err := json.Marshal([]string{LabelClose, subID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode CLOSE: %w", err)
	}
	return msg, nil
}

// IsEndOfStream reports whether msg is the EOSE frame for subID.
// An empty subID matches any EOSE. Frames that are not a JSON array fall back
// to a substring match so relays with slightly off framing still count.
func IsEndOfStream(msg []byte, subID string) bool {
	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return strings.Contains(string(msg), LabelEOSE)
	}
	if len(frame) == 0 {
		return false
	}

	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil || label != LabelEOSE {
		return false
	}
	if subID == "" {
		return true
	}
	if len(frame) < 2 {
		return false
	}

	var id string
	if err := json.Unmarshal(frame[1], &id); err != nil {
		return false
	}
	return id == subID
}
