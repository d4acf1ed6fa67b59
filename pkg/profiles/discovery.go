package profiles

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// ManifestFileName is the skill file whose frontmatter may declare sources.
const ManifestFileName = "SKILL.md"

// Manifest is the subset of SKILL.md frontmatter llmsync reads.
type Manifest struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Sources     []string `mapstructure:"llms-sources"`
}

// Discovery finds profiles declared by SKILL.md manifests
type Discovery struct {
	skillDirs []string
}

// Option configures a Discovery
type Option func(*Discovery)

// WithSkillDirs sets the directories to scan
func WithSkillDirs(dirs ...string) Option {
	return func(d *Discovery) {
		d.skillDirs = dirs
	}
}

// NewDiscovery creates a discovery over DefaultSkillsDir unless directories
// are given.
func NewDiscovery(opts ...Option) *Discovery {
	d := &Discovery{skillDirs: []string{DefaultSkillsDir}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover returns profiles for every SKILL.md under the skill directories
// that declares llms-sources. Manifests without sources, or that fail to
// parse, are skipped. For duplicate names the first directory wins.
func (d *Discovery) Discover() ([]*Profile, error) {
	seen := make(map[string]bool)
	var result []*Profile

	for _, dir := range d.skillDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), "**/"+ManifestFileName)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s", dir)
		}
		sort.Strings(matches)

		for _, match := range matches {
			manifestPath := filepath.Join(dir, filepath.FromSlash(match))
			manifest, err := LoadManifest(manifestPath)
			if err != nil || len(manifest.Sources) == 0 {
				continue
			}

			skillDir := filepath.Dir(manifestPath)
			name := manifest.Name
			if name == "" {
				name = filepath.Base(skillDir)
			}
			if seen[name] {
				continue
			}
			seen[name] = true

			result = append(result, &Profile{
				Name:        name,
				Description: manifest.Description,
				URLs:        manifest.Sources,
				Directory:   skillDir,
				Origin:      OriginSkill,
			})
		}
	}

	return result, nil
}

// LoadManifest parses the YAML frontmatter of a SKILL.md file.
func LoadManifest(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read manifest")
	}

	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	manifest := &Manifest{}
	if err := mapstructure.Decode(metaData, manifest); err != nil {
		return nil, errors.Wrap(err, "failed to decode frontmatter")
	}

	return manifest, nil
}
