package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sttmforge/internal/config"
	"sttmforge/internal/extract"
	"sttmforge/internal/prompts"
	"sttmforge/internal/validate"
)

// MappingPayload asks for an STTM JSON document from a sheet.
type MappingPayload struct {
	SheetCSV string           `json:"sheet_csv"`
	Metadata extract.Metadata `json:"metadata"`
}

// NewMappingPayload builds a payload from raw CSV, deriving metadata.
func NewMappingPayload(csvText string) (MappingPayload, error) {
	cleaned, meta, err := extract.FromCSV(strings.NewReader(csvText))
	if err != nil {
		return MappingPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !meta.HasData {
		return MappingPayload{}, fmt.Errorf("%w: sheet has no data rows", ErrInvalidPayload)
	}
	return MappingPayload{SheetCSV: cleaned, Metadata: meta}, nil
}

// Mapping builds the structured-mapping policy.
func Mapping(cfg config.MappingPolicyConfig, loader *prompts.Loader) *Policy {
	strict := cfg.StrictCoverage
	severity := validate.ParseSeverity(cfg.UnresolvedReferenceSeverity)
	count, fraction := cfg.JudgeComplexCount, cfg.JudgeComplexFraction

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Policy{
		Name:   NameMapping,
		Syntax: validate.CheckJSONObject,
		Rules: validate.MappingRules(validate.MappingOptions{
			StrictCoverage:              strict,
			UnresolvedReferenceSeverity: severity,
		}),
		NeedsJudge: func(art *validate.Artifact) bool {
			doc, _ := art.Value.(map[string]any)
			complex, total := validate.ComplexTransformations(doc)
			return len(complex) > count || float64(len(complex)) > fraction*float64(total)
		},
		JudgeSubjects: func(art *validate.Artifact) []validate.Transformation {
			doc, _ := art.Value.(map[string]any)
			complex, _ := validate.ComplexTransformations(doc)
			return complex
		},
		MaxAttempts:                 maxAttempts,
		Prompt:                      mappingPrompt(loader),
		StrictCoverage:              strict,
		UnresolvedReferenceSeverity: severity,
		JudgeFailOpen:               cfg.JudgeFailOpen,
		FeedbackContainer:           "column_mapping",
		ErrorCode:                   "STTM_VALIDATION_FAILED",
		HTTPStatus:                  500,
		Extension:                   "json",
		decode:                      decodeMappingPayload,
		required: func(payload any) []string {
			if mp, ok := payload.(MappingPayload); ok {
				return mp.Metadata.TargetColumns
			}
			return nil
		},
	}
}

func decodeMappingPayload(raw json.RawMessage) (any, error) {
	var mp MappingPayload
	if err := json.Unmarshal(raw, &mp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(mp.SheetCSV) == "" {
		return nil, fmt.Errorf("%w: sheet_csv is required", ErrInvalidPayload)
	}
	// Callers may send only the sheet; derive what is missing.
	if len(mp.Metadata.Columns) == 0 {
		return NewMappingPayload(mp.SheetCSV)
	}
	return mp, nil
}

func mappingPrompt(loader *prompts.Loader) PromptBuilder {
	return func(_ context.Context, in PromptInput) (string, string, error) {
		mp, ok := in.Payload.(MappingPayload)
		if !ok {
			return "", "", fmt.Errorf("%w: expected MappingPayload, got %T", ErrInvalidPayload, in.Payload)
		}
		system, err := loader.Load("mapping", "", "", prompts.SystemPromptFile)
		if err != nil {
			return "", "", err
		}

		var sb strings.Builder
		sb.WriteString("You are a data engineering expert. Extract metadata from this STTM spreadsheet.\n\n")
		sb.WriteString(mp.SheetCSV)
		sb.WriteString("\n")
		if hints := mp.Metadata.Hints(); len(hints) > 0 {
			sb.WriteString("\nStructure hints: ")
			sb.WriteString(strings.Join(hints, "; "))
			sb.WriteString("\n")
		}
		sb.WriteString("\nCreate a JSON with this exact structure:\n")
		sb.WriteString("- target_table: The target table name\n")
		sb.WriteString("- source_tables: List of source tables with name, desc, catalog, schema\n")
		sb.WriteString("- column_mapping: Dictionary mapping each target column to its source\n\n")
		sb.WriteString("Important:\n")
		sb.WriteString("- Include ALL target columns found in the spreadsheet\n")
		sb.WriteString("- Every source table referenced in transformations must be in source_tables list\n")
		sb.WriteString("- Use exact column names as they appear in the spreadsheet\n\n")
		sb.WriteString("Output only valid JSON, no explanations.\n")

		if in.Feedback != "" {
			sb.WriteString("\n\nFIX THESE SPECIFIC ISSUES:\n")
			sb.WriteString(in.Feedback)
			sb.WriteString("\n")
		}
		return system, sb.String(), nil
	}
}
