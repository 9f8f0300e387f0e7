package conversation

import (
	"strconv"
	"strings"

	"companion.app/relay/internal/model"
)

// formatTranscript renders one "Name: text" line per segment. Resolved
// speakers use their enrolled name; everyone else keeps the source label.
func formatTranscript(s *model.ConversationSession) string {
	var b strings.Builder
	for i, seg := range s.Segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speakerLabel(s, seg))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func speakerLabel(s *model.ConversationSession, seg model.TranscriptSegment) string {
	if !seg.IsUser {
		if name, ok := s.SpeakerProfiles[seg.SpeakerID]; ok {
			return name
		}
	}
	if seg.Speaker != "" {
		return seg.Speaker
	}
	if seg.IsUser {
		return "User"
	}
	return "Speaker " + strconv.Itoa(seg.SpeakerID)
}
