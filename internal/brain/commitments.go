package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"companion.app/relay/common/id"
	"companion.app/relay/common/llm"
	"companion.app/relay/internal/model"
)

var (
	ErrCommitmentNotFound = errors.New("commitment not found")
	ErrCommitmentResolved = errors.New("commitment already resolved")
)

type CommitmentsResponse struct {
	Commitments []CommitmentItem `json:"commitments" jsonschema_description:"Promises and agreements made in the conversation"`
}

type CommitmentItem struct {
	Description string `json:"description" jsonschema_description:"What was promised, as a short sentence"`
	MadeBy      string `json:"made_by" jsonschema_description:"Who made the promise, or empty"`
	MadeTo      string `json:"made_to" jsonschema_description:"Who the promise was made to, or empty"`
	Deadline    string `json:"deadline" jsonschema_description:"YYYY-MM-DD, or empty when no deadline was stated"`
}

var commitmentsSchema = llm.GenerateSchema[CommitmentsResponse]()

var commitmentPattern = regexp.MustCompile(`(?i)\b(I promise(?: to| that)?|I['’]ll|I will|we agreed(?: to| that| on)?)\s+([^.!?\n]{3,})`)

// CommitmentTracker extracts commitments and holds them in process until
// someone marks them fulfilled or missed. Extraction never changes a
// commitment after creating it.
type CommitmentTracker struct {
	llm     llm.Client
	timeout time.Duration
	now     func() time.Time

	mu          sync.RWMutex
	commitments map[int64]*model.TrackedCommitment
}

func NewCommitmentTracker(client llm.Client, timeout time.Duration) *CommitmentTracker {
	return &CommitmentTracker{
		llm:         client,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
		commitments: make(map[int64]*model.TrackedCommitment),
	}
}

// Track extracts the memory's commitments. Running it again for the same
// memory replaces that memory's pending commitments.
func (t *CommitmentTracker) Track(ctx context.Context, in Input) ([]model.TrackedCommitment, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, nil
	}

	var response CommitmentsResponse
	ok, err := structured(ctx, t.llm, t.timeout, "commitment_tracking", llm.Request{
		SystemPrompt: commitmentsSystemPrompt,
		UserPrompt:   in.Content,
		SchemaName:   "commitments_response",
		Schema:       commitmentsSchema,
		Temperature:  llm.Temp(0.1),
	}, &response, in)
	if err != nil {
		return nil, err
	}

	var found []model.TrackedCommitment
	if ok {
		found = t.fromLLM(in, response)
	} else {
		found = t.fromPatterns(in)
	}

	t.mu.Lock()
	for cid, c := range t.commitments {
		if c.MemoryID == in.MemoryID && c.Status == model.CommitmentStatusPending {
			delete(t.commitments, cid)
		}
	}
	for i := range found {
		c := found[i]
		t.commitments[c.ID] = &c
	}
	t.mu.Unlock()

	slog.InfoContext(ctx, "commitments tracked",
		"commitment_count", len(found),
		"source", sourceOf(ok))
	return found, nil
}

func (t *CommitmentTracker) fromLLM(in Input, response CommitmentsResponse) []model.TrackedCommitment {
	now := t.now()
	var out []model.TrackedCommitment
	for _, item := range response.Commitments {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			continue
		}
		out = append(out, model.TrackedCommitment{
			ID:          id.New(),
			Description: desc,
			MadeBy:      optional(item.MadeBy),
			MadeTo:      optional(item.MadeTo),
			Deadline:    parseDate(item.Deadline),
			Status:      model.CommitmentStatusPending,
			MemoryID:    in.MemoryID,
			DeviceID:    in.DeviceID,
			CreatedAt:   now,
		})
	}
	return out
}

func (t *CommitmentTracker) fromPatterns(in Input) []model.TrackedCommitment {
	now := t.now()
	seen := make(map[string]struct{})
	var out []model.TrackedCommitment

	for _, line := range speakerLines(in.Content) {
		for _, m := range commitmentPattern.FindAllStringSubmatch(line[1], -1) {
			desc := sentence(m[0], 200)
			key := strings.ToLower(desc)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			c := model.TrackedCommitment{
				ID:          id.New(),
				Description: desc,
				Status:      model.CommitmentStatusPending,
				MemoryID:    in.MemoryID,
				DeviceID:    in.DeviceID,
				CreatedAt:   now,
			}
			// "we agreed" binds everyone present, so nobody in particular made it.
			if !strings.HasPrefix(strings.ToLower(m[1]), "we") {
				c.MadeBy = optional(line[0])
			}
			out = append(out, c)
		}
	}
	return out
}

func (t *CommitmentTracker) MarkFulfilled(ctx context.Context, commitmentID int64) (*model.TrackedCommitment, error) {
	return t.resolve(ctx, commitmentID, model.CommitmentStatusFulfilled)
}

func (t *CommitmentTracker) MarkMissed(ctx context.Context, commitmentID int64) (*model.TrackedCommitment, error) {
	return t.resolve(ctx, commitmentID, model.CommitmentStatusMissed)
}

func (t *CommitmentTracker) resolve(ctx context.Context, commitmentID int64, status model.CommitmentStatus) (*model.TrackedCommitment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.commitments[commitmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCommitmentNotFound, commitmentID)
	}
	if c.Status != model.CommitmentStatusPending {
		return nil, fmt.Errorf("%w: %d is %s", ErrCommitmentResolved, commitmentID, c.Status)
	}

	now := t.now()
	c.Status = status
	c.ResolvedAt = &now

	slog.InfoContext(ctx, "commitment resolved",
		"commitment_id", commitmentID,
		"status", status)

	out := *c
	return &out, nil
}

func (t *CommitmentTracker) Get(commitmentID int64) (*model.TrackedCommitment, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.commitments[commitmentID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCommitmentNotFound, commitmentID)
	}
	out := *c
	return &out, nil
}

// List returns the device's commitments oldest first. An empty status
// matches every status.
func (t *CommitmentTracker) List(deviceID string, status model.CommitmentStatus) []model.TrackedCommitment {
	t.mu.RLock()
	out := make([]model.TrackedCommitment, 0, len(t.commitments))
	for _, c := range t.commitments {
		if deviceID != "" && c.DeviceID != deviceID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, *c)
	}
	t.mu.RUnlock()

	// snowflake IDs are time ordered
	slices.SortFunc(out, func(a, b model.TrackedCommitment) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

const commitmentsSystemPrompt = `You find commitments in a transcribed conversation.

Each line is "Speaker: text". A commitment is a promise or agreement about the future:
"I'll send it tonight", "I promise to call", "we agreed to meet Tuesday".

## Rules

- description restates the promise in a short sentence
- made_by is the speaker who promised; leave empty for joint agreements
- made_to is the other party when clear from context
- deadline only when stated, as YYYY-MM-DD
- Return an empty list when nothing was promised`
