package worldmodel

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds the world model hyperparameters.
type Config struct {
	LatentDim     int `yaml:"latent_dim"`     // number of categorical latent variables
	LatentClasses int `yaml:"latent_classes"` // classes per latent variable
	ActionDim     int `yaml:"action_dim"`
	ActionBins    int `yaml:"action_bins"`
	ObsSize       int `yaml:"obs_size"`
	ModelDim      int `yaml:"model_dim"`  // width of every recurrent block and MLP hidden layer
	NumBlocks     int `yaml:"num_blocks"` // independent recurrent blocks

	LearningRate float64 `yaml:"learning_rate"`

	// ContinuationLoss adds the continuation cross-entropy to the
	// prediction loss. Off by default.
	ContinuationLoss bool `yaml:"continuation_loss"`

	Seed int64 `yaml:"seed"`
}

// DefaultConfig is sized for cart-pole.
func DefaultConfig() Config {
	return Config{
		LatentDim:     16,
		LatentClasses: 16,
		ActionDim:     1,
		ActionBins:    11,
		ObsSize:       4,
		ModelDim:      32,
		NumBlocks:     8,
		LearningRate:  4e-3,
		Seed:          1,
	}
}

// HiddenSize is the width of the recurrent state h.
func (c Config) HiddenSize() int {
	return c.ModelDim * c.NumBlocks
}

// LatentSize is the width of a flattened latent.
func (c Config) LatentSize() int {
	return c.LatentDim * c.LatentClasses
}

func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"latent_dim", c.LatentDim},
		{"latent_classes", c.LatentClasses},
		{"action_dim", c.ActionDim},
		{"action_bins", c.ActionBins},
		{"obs_size", c.ObsSize},
		{"model_dim", c.ModelDim},
		{"num_blocks", c.NumBlocks},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return errors.Errorf("worldmodel: %s must be > 0, got %d", p.name, p.value)
		}
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("worldmodel: learning_rate must be > 0, got %v", c.LearningRate)
	}
	return nil
}

// LoadConfig reads a YAML file over DefaultConfig. Keys missing from the file
// keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read world model config")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, cfg.Validate()
}
