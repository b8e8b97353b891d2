package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sttmforge/internal/config"
	"sttmforge/internal/prompts"
	"sttmforge/internal/validate"
)

// CodePayload asks for silver or gold notebook code from an STTM document.
type CodePayload struct {
	Layer        string         `json:"layer"`
	STTM         map[string]any `json:"sttm"`
	Instructions string         `json:"instructions,omitempty"`
	Domain       string         `json:"domain,omitempty"`
	Product      string         `json:"product,omitempty"`
	Multisilver  bool           `json:"multisilver,omitempty"`
	SourceDedupe bool           `json:"source_dedupe,omitempty"`
	StaleData    bool           `json:"stale_data,omitempty"`
}

func (c CodePayload) flags() prompts.Flags {
	return prompts.Flags{Multisilver: c.Multisilver, SourceDedupe: c.SourceDedupe, StaleData: c.StaleData}
}

// Silver builds the sql-silver policy.
func Silver(cfg config.CodePolicyConfig, loader *prompts.Loader) *Policy {
	return codePolicy(NameSilver, "silver", cfg, validate.CheckSilverDict, validate.SilverRules(cfg.MinLines), loader)
}

// Gold builds the sql-gold policy.
func Gold(cfg config.CodePolicyConfig, loader *prompts.Loader) *Policy {
	return codePolicy(NameGold, "gold", cfg, validate.CheckPythonModule, validate.GoldRules(cfg.MinLines), loader)
}

func codePolicy(name, layer string, cfg config.CodePolicyConfig, syntax validate.SyntaxChecker,
	rules []validate.Rule, loader *prompts.Loader) *Policy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Policy{
		Name:                        name,
		Syntax:                      syntax,
		Rules:                       rules,
		MaxAttempts:                 maxAttempts,
		Prompt:                      codePrompt(layer, loader),
		StrictCoverage:              true,
		UnresolvedReferenceSeverity: validate.SeverityStrict,
		FeedbackContainer:           "the output",
		ReusePreviousOutput:         true,
		ErrorCode:                   "SQL_VALIDATION_FAILED",
		HTTPStatus:                  422,
		Extension:                   "py",
		decode:                      codePayloadDecoder(layer),
	}
}

func codePayloadDecoder(layer string) func(json.RawMessage) (any, error) {
	return func(raw json.RawMessage) (any, error) {
		var cp CodePayload
		if err := json.Unmarshal(raw, &cp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if cp.Layer == "" {
			cp.Layer = layer
		}
		if !strings.EqualFold(cp.Layer, layer) {
			return nil, fmt.Errorf("%w: layer %q does not match policy layer %q", ErrInvalidPayload, cp.Layer, layer)
		}
		cp.Layer = layer
		if len(cp.STTM) == 0 {
			return nil, fmt.Errorf("%w: sttm is required", ErrInvalidPayload)
		}
		return cp, nil
	}
}

func codePrompt(layer string, loader *prompts.Loader) PromptBuilder {
	return func(_ context.Context, in PromptInput) (string, string, error) {
		cp, ok := in.Payload.(CodePayload)
		if !ok {
			return "", "", fmt.Errorf("%w: expected CodePayload, got %T", ErrInvalidPayload, in.Payload)
		}

		system, err := loader.LoadSystemPrompt(layer, cp.Domain, cp.Product, cp.flags())
		if err != nil {
			return "", "", err
		}

		instructions := cp.Instructions
		if instructions == "" {
			instructions, err = loader.LoadOptional(layer, cp.Domain, cp.Product, prompts.InstructionsFile)
			if err != nil {
				return "", "", err
			}
		}

		sttm, err := json.MarshalIndent(cp.STTM, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("%w: sttm cannot be encoded: %v", ErrInvalidPayload, err)
		}

		var sb strings.Builder
		sb.WriteString("Generate code based on the following source-to-target mapping (STTM) and instructions:\n\n")
		sb.WriteString("STTM:")
		sb.Write(sttm)
		sb.WriteString("\n\n")
		sb.WriteString("Instructions: ")
		sb.WriteString(instructions)
		sb.WriteString("\n\n")

		if in.Feedback != "" {
			sb.WriteString("NOTE: The previous output failed validation for this reason:\n")
			sb.WriteString(in.Feedback)
			sb.WriteString("\n")
		}
		if in.PreviousOutput != "" {
			sb.WriteString("\nBelow is the previous code you generated in base64-encoded format:\n")
			sb.WriteString("Please decode it and respond only with the decoded output, do not include any logic related to Base64 encoding in the output.\n")
			sb.WriteString(in.PreviousOutput)
			sb.WriteString("\n")
			sb.WriteString("You MUST reuse what you can and fix only what failed. Do not generate unrelated code.")
		}
		return system, sb.String(), nil
	}
}

// FromConfig builds the registry of all policies.
func FromConfig(cfg config.PoliciesConfig, loader *prompts.Loader) *Registry {
	return NewRegistry(
		Mapping(cfg.Mapping, loader),
		Silver(cfg.Silver, loader),
		Gold(cfg.Gold, loader),
	)
}
