package gguf

import (
	"path/filepath"
	"regexp"
	"strings"
)

// quantToken matches quantization suffixes commonly embedded in GGUF
// filenames, e.g. Q4_K_M, q8_0, IQ2_XS, f16.
var quantToken = regexp.MustCompile(`(?i)^(i?q[0-9](_[0-9a-z]+)*|f16|f32|bf16)$`)

// knownArchitectures are tokens accepted as an architecture hint when the
// header could not be read.
var knownArchitectures = map[string]bool{
	"llama":     true,
	"llama2":    true,
	"llama3":    true,
	"mistral":   true,
	"mixtral":   true,
	"phi":       true,
	"phi2":      true,
	"phi3":      true,
	"qwen":      true,
	"qwen2":     true,
	"gemma":     true,
	"gemma2":    true,
	"falcon":    true,
	"gpt2":      true,
	"gptneox":   true,
	"starcoder": true,
	"mamba":     true,
	"deepseek":  true,
}

// ParseFilename derives metadata from the model filename alone. It is the
// fallback when the header cannot be parsed and always succeeds: Name is
// the extension-less stem, the remaining fields are set only when a token
// is recognized.
func ParseFilename(name string) Metadata {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	meta := Metadata{Name: stem}

	tokens := strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == ' '
	})
	// Quantization tokens keep their underscores, so split on a coarser
	// boundary for that pass.
	coarse := strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return r == '.' || r == '-' || r == ' '
	})
	for i := len(coarse) - 1; i >= 0; i-- {
		if quantToken.MatchString(coarse[i]) {
			meta.Quantization = strings.ToUpper(coarse[i])
			break
		}
	}
	for _, tok := range tokens {
		if knownArchitectures[tok] {
			meta.Architecture = tok
			break
		}
	}
	return meta
}

// Merge fills unset fields of m from fallback. Header metadata stays
// authoritative when both sources disagree.
func (m Metadata) Merge(fallback Metadata) Metadata {
	if m.Name == "" {
		m.Name = fallback.Name
	}
	if m.Architecture == "" {
		m.Architecture = fallback.Architecture
	}
	if m.Quantization == "" {
		m.Quantization = fallback.Quantization
	}
	if m.ContextLength == 0 {
		m.ContextLength = fallback.ContextLength
	}
	return m
}
