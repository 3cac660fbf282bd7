// Package audio implements the playback engine on the system speaker.
package audio

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Settings configures the speaker output.
type Settings struct {
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs   int `yaml:"buffer_ms" mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
}

// ParseSettings decodes the free-form engine settings map.
func ParseSettings(settings map[string]any) (Settings, error) {
	var s Settings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return s, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return s, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return s, errors.Wrap(err, "validation failed")
	}
	return s, nil
}
