package config

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	apperrors "github.com/GriffinCanCode/game-translator/internal/errors"
)

// Preset holds the chat completion endpoint and sampling parameters for one
// translation backend. Nil sampling values are omitted from requests so the
// provider default applies; an explicit zero is sent.
type Preset struct {
	Name             string
	Model            string
	BaseURL          string
	APIKey           string
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	MaxTokens        int
}

// Float returns a pointer to v for Preset sampling fields.
func Float(v float64) *float64 { return &v }

// Configured reports whether the preset names a model and endpoint.
func (p Preset) Configured() bool {
	return strings.TrimSpace(p.Model) != "" && strings.TrimSpace(p.BaseURL) != ""
}

// LoadPresets reads one preset per INI section. The DEFAULT section is ignored.
//
//	[deepseek]
//	model = deepseek-chat
//	base_url = https://api.deepseek.com/v1
//	api_key = sk-...
//	temperature = 0.3
func LoadPresets(path string) (map[string]Preset, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "load presets %s", path)
	}

	presets := make(map[string]Preset)
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		presets[sec.Name()] = Preset{
			Name:             sec.Name(),
			Model:            sec.Key("model").String(),
			BaseURL:          strings.TrimRight(sec.Key("base_url").String(), "/"),
			APIKey:           sec.Key("api_key").String(),
			Temperature:      optionalFloat(sec, "temperature"),
			TopP:             optionalFloat(sec, "top_p"),
			FrequencyPenalty: optionalFloat(sec, "frequency_penalty"),
			PresencePenalty:  optionalFloat(sec, "presence_penalty"),
			MaxTokens:        sec.Key("max_tokens").MustInt(0),
		}
	}
	return presets, nil
}

// optionalFloat is nil when key is absent or not a number.
func optionalFloat(sec *ini.Section, key string) *float64 {
	if !sec.HasKey(key) {
		return nil
	}
	v, err := sec.Key(key).Float64()
	if err != nil {
		return nil
	}
	return &v
}

// SavePresets writes presets back in LoadPresets' format, sections sorted by name.
func SavePresets(path string, presets map[string]Preset) error {
	f := ini.Empty()
	for _, n := range sortedNames(presets) {
		p := presets[n]
		sec, err := f.NewSection(n)
		if err != nil {
			return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "preset %q", n)
		}
		sec.Key("model").SetValue(p.Model)
		sec.Key("base_url").SetValue(p.BaseURL)
		sec.Key("api_key").SetValue(p.APIKey)
		if p.Temperature != nil {
			sec.Key("temperature").SetValue(formatFloat(*p.Temperature))
		}
		if p.TopP != nil {
			sec.Key("top_p").SetValue(formatFloat(*p.TopP))
		}
		if p.FrequencyPenalty != nil {
			sec.Key("frequency_penalty").SetValue(formatFloat(*p.FrequencyPenalty))
		}
		if p.PresencePenalty != nil {
			sec.Key("presence_penalty").SetValue(formatFloat(*p.PresencePenalty))
		}
		if p.MaxTokens != 0 {
			sec.Key("max_tokens").SetValue(strconv.Itoa(p.MaxTokens))
		}
	}
	if err := f.SaveTo(path); err != nil {
		return apperrors.Wrapf(err, apperrors.CodePersistenceFailed, "save presets %s", path)
	}
	return nil
}

// ActivePreset resolves the preset named by c.Preset from c.PresetsFile. A
// missing presets file falls back to the LLM_* environment variables.
func (c *Config) ActivePreset() (Preset, error) {
	if _, err := os.Stat(c.PresetsFile); errors.Is(err, fs.ErrNotExist) {
		return c.envPreset(), nil
	}
	presets, err := LoadPresets(c.PresetsFile)
	if err != nil {
		return Preset{}, err
	}
	p, ok := presets[c.Preset]
	if !ok {
		return Preset{}, apperrors.Newf(apperrors.CodeConfigMissing, "preset %q not found in %s", c.Preset, c.PresetsFile).
			WithMetadata("available", strings.Join(sortedNames(presets), ","))
	}
	return p, nil
}

func (c *Config) envPreset() Preset {
	return Preset{
		Name:    c.Preset,
		Model:   c.LLMModel,
		BaseURL: strings.TrimRight(c.LLMBaseURL, "/"),
		APIKey:  c.LLMAPIKey,
	}
}

func sortedNames(m map[string]Preset) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
