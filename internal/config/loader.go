package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"modelkeep/pkg/types"
)

// Config holds runtime parameters for the model keeper.
// Zero values mean "unspecified"; WithDefaults fills them in.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CachePath    string `json:"cache_path" yaml:"cache_path" toml:"cache_path"`
	LastUsedPath string `json:"last_used_path" yaml:"last_used_path" toml:"last_used_path"`
	PersonaDir   string `json:"persona_dir" yaml:"persona_dir" toml:"persona_dir"`
	TTSBaseURL   string `json:"tts_base_url" yaml:"tts_base_url" toml:"tts_base_url"`

	GPULayers     int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	ContextLength int `json:"context_length" yaml:"context_length" toml:"context_length"`
	Threads       int `json:"threads" yaml:"threads" toml:"threads"`

	Temperature   float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          float64 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// WithDefaults returns a copy with every unspecified field set to its
// default value. Out-of-range generation parameters are clamped back to
// their defaults rather than failing the load.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.ModelsDir == "" {
		c.ModelsDir = "~/models/llm"
	}
	if c.CachePath == "" {
		c.CachePath = "model_cache.json"
	}
	if c.LastUsedPath == "" {
		c.LastUsedPath = ".last_model"
	}
	if c.GPULayers < 0 {
		c.GPULayers = 0
	}
	if c.ContextLength < 512 {
		c.ContextLength = 4096
	}
	if c.Threads < 0 {
		c.Threads = 0
	}
	if c.Temperature <= 0 || c.Temperature > 2 {
		c.Temperature = 0.7
	}
	if c.TopP <= 0 || c.TopP > 1 {
		c.TopP = 0.9
	}
	if c.TopK <= 0 {
		c.TopK = 40
	}
	if c.RepeatPenalty < 1 {
		c.RepeatPenalty = 1.1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// GenParams assembles the default generation parameters from the config.
func (c Config) GenParams() types.GenParams {
	return types.GenParams{
		Temperature:   c.Temperature,
		TopP:          c.TopP,
		TopK:          c.TopK,
		RepeatPenalty: c.RepeatPenalty,
	}
}
