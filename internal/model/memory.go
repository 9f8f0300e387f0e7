package model

import "time"

const (
	EntityTypePerson              = "person"
	RelationshipSpokeWith         = "spoke_with"
	MemoryTypeConversation        = "conversation"
	RelationshipMentionedTogether = "mentioned_together"
)

type MemoryMetadata struct {
	SessionID    string     `json:"sessionId"`
	DeviceID     string     `json:"deviceId"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
	Speakers     []string   `json:"speakers"`
	SegmentCount int        `json:"segmentCount"`
}

// CreateMemoryRequest is the body of POST /memories.
type CreateMemoryRequest struct {
	Type     string         `json:"type"`
	Source   Source         `json:"source"`
	Content  string         `json:"content"`
	Metadata MemoryMetadata `json:"metadata"`
}

type Memory struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary,omitempty"`
	Entities []Entity `json:"entities,omitempty"`
}

type Entity struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type Relationship struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Type    string `json:"type"`
	Context string `json:"context,omitempty"`
}

// GraphUpdate is the body of POST /knowledge-graph/update.
type GraphUpdate struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

func (u GraphUpdate) Empty() bool {
	return len(u.Entities) == 0 && len(u.Relationships) == 0
}
