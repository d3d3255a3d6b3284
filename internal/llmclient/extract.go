package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/kurame123/confidant/internal/config"
)

// KeyValue is a single attribute pair. Entity attributes use this shape
// instead of map[string]any because OpenAI strict-mode tool schemas require
// additionalProperties:false, which a dynamic-key map cannot satisfy —
// see original_source/src/core/RAGM and haivivi-giztoy's
// pkg/genx/segmentors/genx.go, which hit the same constraint.
type KeyValue struct {
	Key   string `json:"key" jsonschema:"the attribute name"`
	Value string `json:"value" jsonschema:"the attribute value"`
}

// ExtractedEntity is one entity discovered in a dialogue turn.
type ExtractedEntity struct {
	Label string     `json:"label" jsonschema:"type:name, e.g. person:小明"`
	Attrs []KeyValue `json:"attrs"`
}

// ExtractedRelation is a directed edge discovered between two entities.
type ExtractedRelation struct {
	From    string `json:"from"`
	To      string `json:"to"`
	RelType string `json:"rel_type"`
	TimeRef string `json:"time_ref,omitempty"`
}

// toolSchema renders ArgType's jsonschema.For schema into the
// shared.FunctionParameters shape openai-go's strict tool calling expects,
// the way haivivi-giztoy's genx.FuncTool builds its Argument schema.
func toolSchema[ArgType any]() (shared.FunctionParameters, error) {
	s, err := jsonschema.For[ArgType](nil)
	if err != nil {
		return nil, fmt.Errorf("llmclient: build tool schema: %w", err)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal tool schema: %w", err)
	}
	var params shared.FunctionParameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("llmclient: unmarshal tool schema: %w", err)
	}
	return params, nil
}

// ExtractResult is the output of entity/relation extraction (§4.1 step 11
// background task, §4.3 knowledge graph writer).
type ExtractResult struct {
	Entities  []ExtractedEntity
	Relations []ExtractedRelation
}

// AttrMap converts the KeyValue pairs of e into a plain map for callers that
// want map semantics (e.g. merging into an existing node's properties).
func (e ExtractedEntity) AttrMap() map[string]string {
	out := make(map[string]string, len(e.Attrs))
	for _, kv := range e.Attrs {
		out[kv.Key] = kv.Value
	}
	return out
}

// extractArgs is extraction's tool-call argument shape; its jsonschema.For
// schema becomes extractionTool's Parameters.
type extractArgs struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

var extractionTool openai.ChatCompletionToolUnionParam

func init() {
	params, err := toolSchema[extractArgs]()
	if err != nil {
		panic(err)
	}
	extractionTool = openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        "extract_entities",
				Description: openai.String("Extract entities, attributes, and relations mentioned in the conversation."),
				Strict:      openai.Bool(true),
				Parameters:  params,
			},
		},
	}
}

// ExtractEntities runs entity/relation extraction over a dialogue turn via
// the utility role (§4.1 step 11, §4.3).
func (c *Client) ExtractEntities(ctx context.Context, turnText string) (*ExtractResult, error) {
	call, err := c.invokeTool(ctx, config.RoleUtility,
		"You extract entities, their attributes, and relations from a conversation turn. "+
			"Entity labels are \"type:name\" (person, topic, place, object). Only extract what is stated.",
		turnText, extractionTool, "extract_entities")
	if err != nil {
		return nil, err
	}

	var arg extractArgs
	if err := json.Unmarshal([]byte(call), &arg); err != nil {
		return nil, fmt.Errorf("llmclient: parse extraction result: %w", err)
	}
	return &ExtractResult{Entities: arg.Entities, Relations: arg.Relations}, nil
}

// keywordArgs is keyword extraction's tool-call argument shape.
type keywordArgs struct {
	Keywords []string `json:"keywords" jsonschema:"2-3 short search keywords"`
	TimeRef  string   `json:"time_ref" jsonschema:"relative time reference, empty string if none"`
}

var keywordTool openai.ChatCompletionToolUnionParam

func init() {
	params, err := toolSchema[keywordArgs]()
	if err != nil {
		panic(err)
	}
	keywordTool = openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        "extract_keywords",
				Description: openai.String("Extract 2-3 search keywords and an optional relative time reference from a query."),
				Strict:      openai.Bool(true),
				Parameters:  params,
			},
		},
	}
}

// ExtractKeywordsAndTimeRef supports knowledge-graph retrieval (§4.3): it
// extracts 2-3 keywords and an optional relative time reference via a small
// model call. Callers fall back to the heuristic extractor on error.
func (c *Client) ExtractKeywordsAndTimeRef(ctx context.Context, query string) (keywords []string, timeRef string, err error) {
	call, err := c.invokeTool(ctx, config.RoleUtility,
		"Extract 2-3 short search keywords and an optional relative time reference (e.g. \"recently\", \"yesterday\") from the user's query.",
		query, keywordTool, "extract_keywords")
	if err != nil {
		return nil, "", err
	}

	var arg struct {
		Keywords []string `json:"keywords"`
		TimeRef  string   `json:"time_ref"`
	}
	if err := json.Unmarshal([]byte(call), &arg); err != nil {
		return nil, "", fmt.Errorf("llmclient: parse keyword extraction: %w", err)
	}
	return arg.Keywords, arg.TimeRef, nil
}

// ClassifyBool runs the guard-style binary classification contract (§4.5):
// the model must answer with the literal token "true" or "false". Any other
// output is reported via ok=false so the caller can treat it as unknown.
func (c *Client) ClassifyBool(ctx context.Context, role config.ModelRole, systemPrompt, userText string) (verdict bool, ok bool, err error) {
	resp, err := c.ChatComplete(ctx, role, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
	})
	if err != nil {
		return false, false, err
	}
	switch strings.TrimSpace(strings.ToLower(resp.Content)) {
	case "true":
		return true, true, nil
	case "false":
		return false, true, nil
	default:
		return false, false, nil
	}
}

// DuplicateGroup names a canonical entity and the aliases/duplicate
// entities that should be merged into it.
type DuplicateGroup struct {
	Main       string   `json:"main" jsonschema:"the entity name to keep"`
	Duplicates []string `json:"duplicates"`
}

// GraphCleanupProposal is the AI-driven cleanup pass's output (§4.3):
// groups of duplicate entities to merge, plus entities judged useless
// enough to delete outright.
type GraphCleanupProposal struct {
	DuplicateGroups []DuplicateGroup `json:"duplicate_groups"`
	UselessEntities []string         `json:"useless_entities"`
}

var graphCleanupTool openai.ChatCompletionToolUnionParam

func init() {
	params, err := toolSchema[GraphCleanupProposal]()
	if err != nil {
		panic(err)
	}
	graphCleanupTool = openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        "propose_graph_cleanup",
				Description: openai.String("Given a list of entity names from one user's knowledge graph, propose duplicate groups to merge and entities to delete as useless."),
				Strict:      openai.Bool(true),
				Parameters:  params,
			},
		},
	}
}

// ProposeGraphCleanup asks a small model to find duplicate entity groups
// and useless entities among entityNames (§4.3 scheduled AI-driven
// cleanup). Callers apply the result via kgraph's MergeDuplicate and
// DeleteEntity primitives.
func (c *Client) ProposeGraphCleanup(ctx context.Context, entityNames []string) (*GraphCleanupProposal, error) {
	call, err := c.invokeTool(ctx, config.RoleUtility,
		"You review a knowledge graph's entity names for one user. Find near-duplicate entities "+
			"(same real-world thing under different spellings, aliases, or typos) and group them under "+
			"one canonical name. Separately list entities that are too vague, generic, or low-value to "+
			"keep (e.g. single pronouns, filler words). Only act on names you are confident about.",
		strings.Join(entityNames, "\n"), graphCleanupTool, "propose_graph_cleanup")
	if err != nil {
		return nil, err
	}

	var arg GraphCleanupProposal
	if err := json.Unmarshal([]byte(call), &arg); err != nil {
		return nil, fmt.Errorf("llmclient: parse graph cleanup proposal: %w", err)
	}
	return &arg, nil
}

// invokeTool calls role with a single forced tool call and returns the raw
// JSON arguments string.
func (c *Client) invokeTool(ctx context.Context, role config.ModelRole, systemPrompt, userText string, tool openai.ChatCompletionToolUnionParam, toolName string) (string, error) {
	rb, ok := c.roles[role]
	if !ok {
		return "", fmt.Errorf("llmclient: role %q not configured", role)
	}

	ctx, cancel := context.WithTimeout(ctx, rb.timeout)
	defer cancel()

	resp, err := rb.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: rb.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userText),
		},
		Tools: []openai.ChatCompletionToolUnionParam{tool},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: %s tool call: %w", role, err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return "", fmt.Errorf("llmclient: %s tool call: no tool call returned", role)
	}
	for _, tc := range resp.Choices[0].Message.ToolCalls {
		if tc.Function.Name == toolName {
			return tc.Function.Arguments, nil
		}
	}
	return "", fmt.Errorf("llmclient: %s tool call: tool %q not invoked", role, toolName)
}
