package tuning

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"dynlights.ai/internal/sim/lighting/mode"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	Mode                mode.Mode `yaml:"mode" json:"mode"`
	EntitiesLightSource bool      `yaml:"entities_light_source" json:"entities_light_source"`
	ChunkSize           int       `yaml:"chunk_size" json:"chunk_size" validate:"min=2,max=512"`

	TickRateHz         int `yaml:"tick_rate_hz" json:"tick_rate_hz" validate:"min=1,max=1000"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks" validate:"min=0"`

	Observer Observer `yaml:"observer" json:"observer"`
}

type Observer struct {
	MaxClients    int `yaml:"max_clients" json:"max_clients" validate:"min=0,max=4096"`
	SendQueueSize int `yaml:"send_queue_size" json:"send_queue_size" validate:"min=1,max=65536"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		Mode:                mode.Fancy,
		EntitiesLightSource: true,
		ChunkSize:           16,
		TickRateHz:          20,
		SnapshotEveryTicks:  1200,
		Observer: Observer{
			MaxClients:    64,
			SendQueueSize: 256,
		},
	}
}

// Load reads path over Defaults, applies DL_* environment overrides and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("lighting.yaml: %w", err)
	}
	if err := t.ApplyEnv(os.LookupEnv); err != nil {
		return t, err
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// ApplyEnv overrides fields from DL_MODE, DL_ENTITIES_LIGHT_SOURCE and DL_CHUNK_SIZE.
func (t *Tuning) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DL_MODE"); ok && strings.TrimSpace(v) != "" {
		m, err := mode.Parse(v)
		if err != nil {
			return fmt.Errorf("DL_MODE: %w", err)
		}
		t.Mode = m
	}
	if v, ok := lookup("DL_ENTITIES_LIGHT_SOURCE"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DL_ENTITIES_LIGHT_SOURCE: %w", err)
		}
		t.EntitiesLightSource = b
	}
	if v, ok := lookup("DL_CHUNK_SIZE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DL_CHUNK_SIZE: %w", err)
		}
		t.ChunkSize = n
	}
	return nil
}

var validate = validator.New()

func (t Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("lighting.yaml: %w", err)
	}
	return nil
}
