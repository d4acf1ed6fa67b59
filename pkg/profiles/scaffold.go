package profiles

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type manifestFrontmatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Sources     []string `yaml:"llms-sources"`
}

// Scaffold creates <skillsDir>/<name>/SKILL.md declaring urls as the skill's
// llms-sources and returns the manifest path. An existing SKILL.md is never
// overwritten.
func Scaffold(skillsDir, name, description string, urls []string) (string, error) {
	if !namePattern.MatchString(name) {
		return "", errors.Errorf("invalid skill name %q: use lowercase letters, digits and dashes", name)
	}
	if len(urls) == 0 {
		return "", errors.New("at least one source URL is required")
	}
	for _, u := range urls {
		if err := validateSourceURL(u); err != nil {
			return "", err
		}
	}
	if skillsDir == "" {
		skillsDir = DefaultSkillsDir
	}
	if description == "" {
		description = fmt.Sprintf("%s reference docs synced from llms.txt", name)
	}

	frontmatter, err := yaml.Marshal(manifestFrontmatter{
		Name:        name,
		Description: description,
		Sources:     urls,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render frontmatter")
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(frontmatter)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# Skill: %s\n\n> %s\n\n", name, description)
	fmt.Fprintf(&buf, "Run `llmsync sync %s` to refresh `llms-source.txt` in this directory.\n", name)

	skillDir := filepath.Join(skillsDir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create skill directory")
	}

	manifestPath := filepath.Join(skillDir, ManifestFileName)
	f, err := os.OpenFile(manifestPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", errors.Errorf("skill %q already exists at %s", name, manifestPath)
		}
		return "", errors.Wrap(err, "failed to create manifest")
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", errors.Wrap(err, "failed to write manifest")
	}

	return manifestPath, nil
}

func validateSourceURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid source URL %q", raw)
	}
	if (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return errors.Errorf("invalid source URL %q: must be an absolute http(s) URL", raw)
	}
	return nil
}
