package profiles

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Config is one entry of the profiles config section.
type Config struct {
	Description string   `mapstructure:"description"`
	URLs        []string `mapstructure:"urls"`
	// Dir is the profile directory. Relative paths resolve against the
	// skills dir; empty means <skills dir>/<name>.
	Dir string `mapstructure:"dir"`
}

// FromConfig decodes the raw profiles config section (name -> Config) into
// profiles rooted at skillsDir.
func FromConfig(skillsDir string, raw map[string]interface{}) ([]*Profile, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if skillsDir == "" {
		skillsDir = DefaultSkillsDir
	}

	decoded := make(map[string]Config, len(raw))
	if err := mapstructure.Decode(raw, &decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode profiles config")
	}

	names := make([]string, 0, len(decoded))
	for name := range decoded {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*Profile, 0, len(decoded))
	for _, name := range names {
		cfg := decoded[name]

		dir := cfg.Dir
		switch {
		case dir == "":
			dir = filepath.Join(skillsDir, name)
		case !filepath.IsAbs(dir):
			dir = filepath.Join(skillsDir, dir)
		}

		p := &Profile{
			Name:        name,
			Description: cfg.Description,
			URLs:        cfg.URLs,
			Directory:   dir,
			Origin:      OriginConfig,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return result, nil
}

// Registry is the merged set of profiles
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry merges profile groups, earlier groups taking precedence. A
// profile is shadowed when an earlier one has the same name or writes the same
// output file.
func NewRegistry(groups ...[]*Profile) *Registry {
	r := &Registry{profiles: make(map[string]*Profile)}
	outputs := make(map[string]bool)

	for _, group := range groups {
		for _, p := range group {
			if p == nil {
				continue
			}
			output := filepath.Clean(p.OutputPath())
			if _, exists := r.profiles[p.Name]; exists || outputs[output] {
				continue
			}
			r.profiles[p.Name] = p
			outputs[output] = true
		}
	}

	return r
}

// Get returns the named profile
func (r *Registry) Get(name string) (*Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, errors.Errorf("profile '%s' not found", name)
	}
	return p, nil
}

// List returns all profiles sorted by name
func (r *Registry) List() []*Profile {
	result := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Select returns the named profiles in the given order, or every profile when
// names is empty. Unknown names are reported together.
func (r *Registry) Select(names []string) ([]*Profile, error) {
	if len(names) == 0 {
		return r.List(), nil
	}

	var missing []string
	result := make([]*Profile, 0, len(names))
	for _, name := range names {
		p, ok := r.profiles[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		result = append(result, p)
	}

	if len(missing) > 0 {
		return nil, errors.Errorf("unknown profile(s): %s", strings.Join(missing, ", "))
	}
	return result, nil
}
