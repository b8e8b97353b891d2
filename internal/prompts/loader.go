// Package prompts loads prompt templates from a directory tree with
// per-domain overrides and built-in defaults.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"sttmforge/internal/logging"
)

//go:embed defaults
var defaults embed.FS

// ErrTemplateNotFound is returned when no directory level or default holds
// the requested template.
var ErrTemplateNotFound = errors.New("prompt template not found")

const (
	// SystemPromptFile is the generic system prompt of every layer.
	SystemPromptFile = "system_prompt.txt"
	// InstructionsFile holds optional per-layer generation instructions.
	InstructionsFile = "instructions_langchain.txt"
)

// Loader resolves templates as <dir>/<layer>/<domain>/<product>/<file>,
// then <dir>/<layer>/<file>, then the embedded defaults. Reads are cached
// until Invalidate.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

// NewLoader creates a loader rooted at dir. An empty dir uses defaults only.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]string)}
}

// Dir returns the template root.
func (l *Loader) Dir() string {
	return l.dir
}

// Load returns the template text for file.
func (l *Loader) Load(layer, domain, product, file string) (string, error) {
	layer = strings.ToLower(layer)
	key := strings.Join([]string{layer, domain, product, file}, "\x00")

	l.mu.RLock()
	if text, ok := l.cache[key]; ok {
		l.mu.RUnlock()
		return text, nil
	}
	l.mu.RUnlock()

	text, source, err := l.resolve(layer, domain, product, file)
	if err != nil {
		return "", err
	}
	logging.PromptsDebug("loaded %s from %s", file, source)

	l.mu.Lock()
	l.cache[key] = text
	l.mu.Unlock()
	return text, nil
}

// LoadOptional is Load that treats a missing template as empty.
func (l *Loader) LoadOptional(layer, domain, product, file string) (string, error) {
	text, err := l.Load(layer, domain, product, file)
	if errors.Is(err, ErrTemplateNotFound) {
		return "", nil
	}
	return text, err
}

// LoadSystemPrompt loads the system prompt variant selected by flags,
// falling back to the layer's generic system prompt when the variant does
// not exist anywhere.
func (l *Loader) LoadSystemPrompt(layer, domain, product string, flags Flags) (string, error) {
	file := SystemPromptName(layer, flags)
	text, err := l.Load(layer, domain, product, file)
	if errors.Is(err, ErrTemplateNotFound) && file != SystemPromptFile {
		logging.PromptsWarn("%s not found for layer %s, using %s", file, layer, SystemPromptFile)
		return l.Load(layer, domain, product, SystemPromptFile)
	}
	return text, err
}

func (l *Loader) resolve(layer, domain, product, file string) (text, source string, err error) {
	if l.dir != "" {
		var candidates []string
		if domain != "" && product != "" {
			candidates = append(candidates, filepath.Join(l.dir, layer, domain, product, file))
		}
		candidates = append(candidates, filepath.Join(l.dir, layer, file))

		for _, p := range candidates {
			data, err := os.ReadFile(p)
			if err == nil {
				return string(data), p, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", "", fmt.Errorf("failed to read template %s: %w", p, err)
			}
			logging.PromptsDebug("template %s not found, falling back", p)
		}
	}

	embedded := path.Join("defaults", layer, file)
	data, err := defaults.ReadFile(embedded)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, layer, file)
	}
	return string(data), "embedded:" + embedded, nil
}

// Invalidate drops every cached template.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.cache) > 0 {
		logging.PromptsDebug("invalidating %d cached templates", len(l.cache))
	}
	l.cache = make(map[string]string)
}

// Flags select the system prompt variant for code generation.
type Flags struct {
	Multisilver  bool
	SourceDedupe bool
	StaleData    bool
}

// SystemPromptName picks the system prompt file for layer and flags.
func SystemPromptName(layer string, f Flags) string {
	silver := strings.EqualFold(layer, "silver")
	switch {
	case f.Multisilver && !f.SourceDedupe:
		return "system_prompt_multisilver.txt"
	case f.Multisilver && !f.StaleData:
		return "system_prompt_multisilver_dedupe.txt"
	case f.Multisilver:
		return "system_prompt_multisilver_dedupe_staledata.txt"
	case silver && f.SourceDedupe && !f.StaleData:
		return "system_prompt_dedupe.txt"
	case silver && f.SourceDedupe:
		return "system_prompt_dedupe_staledata.txt"
	default:
		return SystemPromptFile
	}
}
