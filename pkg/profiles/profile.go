// Package profiles defines the URL sets llmsync keeps in sync. A profile is
// an ordered list of llms.txt URLs plus the skill directory that receives the
// combined llms-source.txt.
//
// Profiles come from three places, in decreasing precedence: SKILL.md
// manifests discovered under the skills directories, the profiles section of
// the config file, and the builtin set.
package profiles

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/llmsync/pkg/docsync"
)

// DefaultSkillsDir is where skill directories live in a repository.
const DefaultSkillsDir = ".github/skills"

// Origin records where a profile definition came from.
type Origin string

const (
	OriginSkill   Origin = "skill"
	OriginConfig  Origin = "config"
	OriginBuiltin Origin = "builtin"
)

// Profile is one sync target definition.
type Profile struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URLs        []string `json:"urls"`
	Directory   string   `json:"directory"`
	Origin      Origin   `json:"origin"`
}

// OutputPath is the llms-source.txt file inside the profile directory.
func (p *Profile) OutputPath() string {
	return filepath.Join(p.Directory, docsync.OutputFileName)
}

// Target converts the profile into a sync job.
func (p *Profile) Target() docsync.Target {
	urls := make([]string, len(p.URLs))
	copy(urls, p.URLs)
	return docsync.Target{
		Name:       p.Name,
		URLs:       urls,
		OutputPath: p.OutputPath(),
		RequireDir: true,
	}
}

// Exists reports whether the profile directory is present on disk.
func (p *Profile) Exists() bool {
	info, err := os.Stat(p.Directory)
	return err == nil && info.IsDir()
}

// ResolveSkillsDir anchors a relative skills dir to the repository it belongs
// to: the nearest ancestor of cwd (cwd included) that contains dir. When no
// ancestor has it the result is dir joined to cwd. Absolute dirs are
// returned unchanged.
func ResolveSkillsDir(dir, cwd string) string {
	if dir == "" {
		dir = DefaultSkillsDir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}

	for current := filepath.Clean(cwd); ; {
		candidate := filepath.Join(current, dir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return filepath.Join(cwd, dir)
}

// Validate checks that the profile has a name, at least one URL and a directory.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile name is required")
	}
	if len(p.URLs) == 0 {
		return errors.Errorf("profile %q has no URLs", p.Name)
	}
	if p.Directory == "" {
		return errors.Errorf("profile %q has no directory", p.Name)
	}
	return nil
}

type builtin struct {
	name        string
	description string
	dir         string
	urls        []string
}

var builtins = []builtin{
	{
		name:        "convex",
		description: "Convex reference docs: schema design, reactive queries, functions",
		dir:         "convex-patterns",
		urls: []string{
			"https://www.convex.dev/llms.txt",
			"https://docs.convex.dev/llms.txt",
		},
	},
	{
		name:        "coolify",
		description: "Coolify self-hosting docs",
		dir:         "coolify-patterns",
		urls: []string{
			"https://coolify.io/docs/llms.txt",
		},
	},
}

// Builtins returns fresh copies of the builtin profiles rooted at skillsDir.
func Builtins(skillsDir string) []*Profile {
	if skillsDir == "" {
		skillsDir = DefaultSkillsDir
	}

	result := make([]*Profile, 0, len(builtins))
	for _, b := range builtins {
		urls := make([]string, len(b.urls))
		copy(urls, b.urls)
		result = append(result, &Profile{
			Name:        b.name,
			Description: b.description,
			URLs:        urls,
			Directory:   filepath.Join(skillsDir, b.dir),
			Origin:      OriginBuiltin,
		})
	}
	return result
}
