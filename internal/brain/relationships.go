package brain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"companion.app/relay/common/llm"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

// EntityGraph is the knowledge graph as the analyzer sees it.
type EntityGraph interface {
	FindEntity(ctx context.Context, name string) (*model.Entity, bool, error)
	UpdateKnowledgeGraph(ctx context.Context, update model.GraphUpdate) error
}

type InsightsResponse struct {
	Insights []InsightItem `json:"insights" jsonschema_description:"One entry per pair of people who interacted or were discussed together"`
}

type InsightItem struct {
	PersonA         string   `json:"person_a"`
	PersonB         string   `json:"person_b"`
	InteractionType string   `json:"interaction_type" jsonschema_description:"snake_case verb phrase, e.g. works_with, family_of, mentioned_together"`
	Sentiment       string   `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	Topics          []string `json:"topics"`
	Strength        float64  `json:"strength" jsonschema_description:"0.0-1.0 confidence in the relationship"`
}

var insightsSchema = llm.GenerateSchema[InsightsResponse]()

type RelationshipResult struct {
	People   []string                    `json:"people"`
	Insights []model.RelationshipInsight `json:"insights"`
	Edges    int                         `json:"edges"`
}

type RelationshipAnalyzer struct {
	llm      llm.Client
	contacts store.ContactStore
	graph    EntityGraph
	timeout  time.Duration
}

func NewRelationshipAnalyzer(client llm.Client, contacts store.ContactStore, graph EntityGraph, timeout time.Duration) *RelationshipAnalyzer {
	return &RelationshipAnalyzer{llm: client, contacts: contacts, graph: graph, timeout: timeout}
}

// Analyze finds the people in a memory and records how they relate. With
// fewer than two people there is nothing to relate and it returns an empty
// result. Edges are written only between people already in the graph.
func (a *RelationshipAnalyzer) Analyze(ctx context.Context, in Input) (*RelationshipResult, error) {
	people, err := a.detectPeople(ctx, in)
	if err != nil {
		return nil, err
	}
	result := &RelationshipResult{People: people}
	if len(people) < 2 {
		slog.InfoContext(ctx, "fewer than two people in memory, skipping relationship analysis",
			"people", len(people))
		return result, nil
	}

	var response InsightsResponse
	ok, err := structured(ctx, a.llm, a.timeout, "relationship_analysis", llm.Request{
		SystemPrompt: insightsSystemPrompt,
		UserPrompt:   fmt.Sprintf("People: %s\n\n%s", strings.Join(people, ", "), in.Content),
		SchemaName:   "insights_response",
		Schema:       insightsSchema,
		Temperature:  llm.Temp(0.2),
	}, &response, in)
	if err != nil {
		return nil, err
	}

	if ok {
		result.Insights = fromInsights(people, response)
	} else {
		result.Insights = coOccurrence(people)
	}

	edges, err := a.writeEdges(ctx, in, result.Insights)
	if err != nil {
		return nil, err
	}
	result.Edges = edges

	slog.InfoContext(ctx, "relationships analyzed",
		"people", len(people),
		"insights", len(result.Insights),
		"edges", edges,
		"source", sourceOf(ok))
	return result, nil
}

// detectPeople matches contact and speaker names in the memory text.
func (a *RelationshipAnalyzer) detectPeople(ctx context.Context, in Input) ([]string, error) {
	candidates := slices.Clone(in.Speakers)
	if a.contacts != nil && in.DeviceID != "" {
		contacts, err := a.contacts.ListByDevice(ctx, in.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("listing contacts: %w", err)
		}
		for _, c := range contacts {
			candidates = append(candidates, c.Name)
		}
	}

	seen := make(map[string]struct{})
	var people []string
	for _, name := range candidates {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		if !mentions(in.Content, name) {
			continue
		}
		seen[key] = struct{}{}
		people = append(people, name)
	}
	slices.Sort(people)
	return people, nil
}

func mentions(text, name string) bool {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// fromInsights keeps insights about two distinct detected people, using
// the detected spelling of each name.
func fromInsights(people []string, response InsightsResponse) []model.RelationshipInsight {
	canonical := make(map[string]string, len(people))
	for _, p := range people {
		canonical[strings.ToLower(p)] = p
	}

	var out []model.RelationshipInsight
	for _, item := range response.Insights {
		a, okA := canonical[strings.ToLower(strings.TrimSpace(item.PersonA))]
		b, okB := canonical[strings.ToLower(strings.TrimSpace(item.PersonB))]
		if !okA || !okB || a == b {
			continue
		}
		kind := strings.TrimSpace(item.InteractionType)
		if kind == "" {
			kind = model.RelationshipMentionedTogether
		}
		sentiment := item.Sentiment
		if sentiment == "" {
			sentiment = "neutral"
		}
		out = append(out, model.RelationshipInsight{
			PersonA:         a,
			PersonB:         b,
			InteractionType: kind,
			Sentiment:       sentiment,
			Topics:          item.Topics,
			Strength:        min(max(item.Strength, 0), 1),
		})
	}
	return out
}

// coOccurrence relates every pair of detected people neutrally.
func coOccurrence(people []string) []model.RelationshipInsight {
	var out []model.RelationshipInsight
	for i := 0; i < len(people); i++ {
		for j := i + 1; j < len(people); j++ {
			out = append(out, model.RelationshipInsight{
				PersonA:         people[i],
				PersonB:         people[j],
				InteractionType: model.RelationshipMentionedTogether,
				Sentiment:       "neutral",
				Strength:        0.5,
			})
		}
	}
	return out
}

func (a *RelationshipAnalyzer) writeEdges(ctx context.Context, in Input, insights []model.RelationshipInsight) (int, error) {
	if a.graph == nil || len(insights) == 0 {
		return 0, nil
	}

	exists := make(map[string]bool)
	lookup := func(name string) (bool, error) {
		if ok, cached := exists[name]; cached {
			return ok, nil
		}
		_, found, err := a.graph.FindEntity(ctx, name)
		if err != nil {
			return false, fmt.Errorf("looking up entity %q: %w", name, err)
		}
		exists[name] = found
		return found, nil
	}

	var update model.GraphUpdate
	for _, insight := range insights {
		okA, err := lookup(insight.PersonA)
		if err != nil {
			return 0, err
		}
		okB, err := lookup(insight.PersonB)
		if err != nil {
			return 0, err
		}
		if !okA || !okB {
			continue
		}
		update.Relationships = append(update.Relationships, model.Relationship{
			Source:  insight.PersonA,
			Target:  insight.PersonB,
			Type:    insight.InteractionType,
			Context: edgeContext(in, insight),
		})
	}

	if len(update.Relationships) == 0 {
		return 0, nil
	}
	if err := a.graph.UpdateKnowledgeGraph(ctx, update); err != nil {
		return 0, fmt.Errorf("writing relationship edges: %w", err)
	}
	return len(update.Relationships), nil
}

func edgeContext(in Input, insight model.RelationshipInsight) string {
	parts := []string{"memory " + in.MemoryID, "sentiment " + insight.Sentiment}
	if len(insight.Topics) > 0 {
		parts = append(parts, "topics "+strings.Join(insight.Topics, ", "))
	}
	return strings.Join(parts, "; ")
}

const insightsSystemPrompt = `You analyse how people relate to each other in a transcribed conversation.

You are given the people detected in the conversation and the transcript.
Only describe pairs drawn from the given people, using their names exactly as given.

## Rules

- interaction_type is a snake_case phrase such as works_with, family_of, friends_with, mentioned_together
- sentiment reflects how the pair's interaction comes across
- topics are a few lowercase nouns they discussed
- strength is your confidence from 0.0 to 1.0
- Return an empty list when no pair interacts`
