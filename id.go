package parley

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for message and chat response identifiers.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// toolCallSeq backs NewToolCallID. Monotonic so synthesized ids never
// collide within a process even when generated in the same millisecond.
var toolCallSeq atomic.Int64

// NewToolCallID synthesizes an identifier for a tool call whose provider
// never assigned one.
func NewToolCallID() string {
	return fmt.Sprintf("tool_call_%d_%d", time.Now().UnixMilli(), toolCallSeq.Add(1))
}
