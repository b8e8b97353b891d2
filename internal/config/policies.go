package config

// PoliciesConfig tunes the built-in policies.
type PoliciesConfig struct {
	Mapping MappingPolicyConfig `yaml:"mapping"`
	Silver  CodePolicyConfig    `yaml:"silver"`
	Gold    CodePolicyConfig    `yaml:"gold"`
}

// MappingPolicyConfig tunes the structured-mapping policy.
type MappingPolicyConfig struct {
	MaxAttempts int `yaml:"max_attempts"`

	// StrictCoverage makes a missing target column block success.
	StrictCoverage bool `yaml:"strict_coverage"`

	// UnresolvedReferenceSeverity is "strict" or "non_strict".
	UnresolvedReferenceSeverity string `yaml:"unresolved_reference_severity"`

	// JudgeFailOpen treats a failed judge call as a pass (with a non-strict note).
	JudgeFailOpen bool `yaml:"judge_fail_open"`

	// Escalate to the judge when complex transformations exceed either bound.
	JudgeComplexCount    int     `yaml:"judge_complex_count"`
	JudgeComplexFraction float64 `yaml:"judge_complex_fraction"`
}

// CodePolicyConfig tunes the sql-silver and sql-gold policies.
type CodePolicyConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	MinLines    int `yaml:"min_lines"`
}
