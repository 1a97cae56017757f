package bridge

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// FileOptions is the serializable subset of Options.
type FileOptions struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	Fields     []string `yaml:"fields" mapstructure:"fields"`
	Exclude    []string `yaml:"exclude" mapstructure:"exclude"`
	LoadOnly   []string `yaml:"load_only" mapstructure:"load_only"`
	DumpOnly   []string `yaml:"dump_only" mapstructure:"dump_only"`
	Unknown    string   `yaml:"unknown" mapstructure:"unknown"`
	Many       bool     `yaml:"many" mapstructure:"many"`
	ReturnMaps bool     `yaml:"return_maps" mapstructure:"return_maps"`
}

// Options converts the file form. Unset fields stay zero.
func (f FileOptions) Options() (Options, error) {
	unknown, err := ParseUnknownPolicy(f.Unknown)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Name:       f.Name,
		Fields:     f.Fields,
		Exclude:    f.Exclude,
		LoadOnly:   f.LoadOnly,
		DumpOnly:   f.DumpOnly,
		Unknown:    unknown,
		Many:       f.Many,
		ReturnMaps: f.ReturnMaps,
	}, nil
}

// OptionsFromMap decodes schema options from a generic map, such as a
// parsed YAML or JSON document. Unrecognized keys are an error.
func OptionsFromMap(m map[string]any) (Options, error) {
	var fo FileOptions
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fo,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Options{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return fo.Options()
}

// LoadOptionsYAML reads schema options from a YAML document.
func LoadOptionsYAML(data []byte) (Options, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return OptionsFromMap(m)
}

// LoadOptionsYAMLSet reads a YAML mapping of schema name to options.
// Each entry's name defaults to its key.
func LoadOptionsYAMLSet(data []byte) (map[string]Options, error) {
	var doc map[string]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	out := make(map[string]Options, len(doc))
	for name, raw := range doc {
		opts, err := OptionsFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		if opts.Name == "" {
			opts.Name = name
		}
		out[name] = opts
	}
	return out, nil
}
