package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// RowExtractor turns a snapshot plus the query into rows and a column schema.
// The orchestrator treats any implementation as a black box that may return
// zero rows.
type RowExtractor interface {
	Extract(ctx context.Context, snap Snapshot, query Query) (ExtractionResult, error)
}

// AnthropicExtractor drives the extraction model with structured output and
// parses its response defensively.
type AnthropicExtractor struct {
	apiKey string
	config *Config
	outDir string
	log    *zap.Logger
}

func NewAnthropicExtractor(apiKey string, config *Config, outDir string, log *zap.Logger) *AnthropicExtractor {
	return &AnthropicExtractor{apiKey: apiKey, config: config, outDir: outDir, log: log}
}

// Extract prompts the model with the snapshot's combined rendering. The raw
// model output is persisted beside the other run artifacts before parsing, so
// a bad response can be inspected after the fact.
func (e *AnthropicExtractor) Extract(ctx context.Context, snap Snapshot, query Query) (ExtractionResult, error) {
	systemPrompt := e.config.GetExtractorPrompt()
	schema := e.config.GetExtractorSchema()

	rendered := limitContentTokens(RenderSnapshot(snap), e.config.Settings.Extractor.ContentMaxTokens)
	userPrompt := fmt.Sprintf("REQUEST: %s\nTARGET ROWS: %d\n", query.Text, query.TargetRows)
	if query.Refinement != "" {
		userPrompt += fmt.Sprintf("REFINEMENT: %s\n", query.Refinement)
	}
	userPrompt += "\nSOURCES:\n" + rendered

	settings := types.RequestSettings{
		Model:       e.config.Settings.Extractor.Model,
		MaxTokens:   e.config.Settings.Extractor.MaxTokens,
		Temperature: e.config.Settings.Extractor.Temperature,
	}

	response, err := anthropic.PromptWithSettings(systemPrompt, userPrompt, schema, e.apiKey, settings)
	if err != nil {
		return ExtractionResult{}, errors.Wrap(err, "extraction model call")
	}
	if len(response.Content) == 0 {
		return ExtractionResult{}, errors.New("empty extraction response")
	}

	raw := response.Content[0].Text
	rawPath := e.saveRawAnalysis(snap.SessionID, raw)

	result, err := ParseExtraction(raw)
	if err != nil {
		e.log.Warn("extraction parse failed", zap.String("session", snap.SessionID), zap.Error(err))
		return ExtractionResult{RawPath: rawPath}, err
	}
	result.RawPath = rawPath
	return result, nil
}

func (e *AnthropicExtractor) saveRawAnalysis(sessionID, raw string) string {
	if err := os.MkdirAll(e.outDir, 0755); err != nil {
		return ""
	}
	path := filepath.Join(e.outDir, fmt.Sprintf("%s-analysis.txt", sessionID))
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		e.log.Warn("could not save raw analysis", zap.Error(err))
		return ""
	}
	return path
}

// limitContentTokens truncates content to approximately maxTokens (4 chars
// per token).
func limitContentTokens(content string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars] + "..."
}

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseExtraction recovers rows and schema from model output. Strategies in
// order: direct parse, fence-stripped parse, bracket-candidate recovery.
func ParseExtraction(raw string) (ExtractionResult, error) {
	trimmed := strings.TrimSpace(raw)

	if result, ok := parseEnvelope(trimmed); ok {
		return result, nil
	}

	for _, m := range fencePattern.FindAllStringSubmatch(trimmed, -1) {
		if result, ok := parseEnvelope(strings.TrimSpace(m[1])); ok {
			return result, nil
		}
	}

	for _, candidate := range bracketCandidates(trimmed) {
		if result, ok := parseEnvelope(candidate); ok {
			return result, nil
		}
	}

	return ExtractionResult{}, errors.New("no parsable JSON in extraction output")
}

// extractionEnvelope matches the structured-output schema. Rows stay raw
// until the envelope is accepted so key presence and row count can be told
// apart.
type extractionEnvelope struct {
	Schema    []SchemaColumn  `json:"schema"`
	Rows      json.RawMessage `json:"rows"`
	Reasoning string          `json:"reasoning"`
}

func parseEnvelope(text string) (ExtractionResult, bool) {
	// An object carrying a rows key is authoritative even when rows is empty:
	// the adapter answered, there is just no data. Falling through here would
	// let looser strategies mine sub-arrays (the schema declaration) out of an
	// already-decoded envelope and fabricate rows from them.
	var env extractionEnvelope
	if err := json.Unmarshal([]byte(text), &env); err == nil && env.Rows != nil {
		var loose []map[string]any
		if err := json.Unmarshal(env.Rows, &loose); err != nil {
			loose = nil
		}
		return ExtractionResult{
			Rows:      coerceRows(loose),
			Schema:    env.Schema,
			Reasoning: env.Reasoning,
		}, true
	}

	// Bare array of row objects, schema inferred downstream.
	var loose []map[string]any
	if err := json.Unmarshal([]byte(text), &loose); err == nil && len(loose) > 0 {
		return ExtractionResult{Rows: coerceRows(loose)}, true
	}

	return ExtractionResult{}, false
}

// bracketCandidates pulls balanced top-level {...} and [...] substrings out
// of prose-wrapped output.
func bracketCandidates(text string) []string {
	var candidates []string
	for _, open := range []byte{'{', '['} {
		closer := byte('}')
		if open == '[' {
			closer = ']'
		}
		start := strings.IndexByte(text, open)
		for start >= 0 {
			depth := 0
			inString := false
			for i := start; i < len(text); i++ {
				ch := text[i]
				if inString {
					if ch == '\\' {
						i++
					} else if ch == '"' {
						inString = false
					}
					continue
				}
				switch ch {
				case '"':
					inString = true
				case open:
					depth++
				case closer:
					depth--
					if depth == 0 {
						candidates = append(candidates, text[start:i+1])
						i = len(text)
					}
				}
			}
			next := strings.IndexByte(text[start+1:], open)
			if next < 0 {
				break
			}
			start = start + 1 + next
		}
	}
	return candidates
}

// coerceRows flattens loose JSON values into string cells.
func coerceRows(loose []map[string]any) []Row {
	rows := make([]Row, 0, len(loose))
	for _, m := range loose {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = coerceValue(v)
		}
		rows = append(rows, row)
	}
	return rows
}

func coerceValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
