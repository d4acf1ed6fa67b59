package main

import (
	"fmt"

	"github.com/jingkaihe/llmsync/pkg/presenter"
	"github.com/jingkaihe/llmsync/pkg/profiles"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddConfig holds configuration for the add command
type AddConfig struct {
	URLs        []string
	Description string
	SkillsDir   string
}

// NewAddConfig creates a new AddConfig with default values
func NewAddConfig() *AddConfig {
	return &AddConfig{
		URLs:        []string{},
		Description: "",
		SkillsDir:   profiles.DefaultSkillsDir,
	}
}

func (c *AddConfig) Validate() error {
	if len(c.URLs) == 0 {
		return errors.New("at least one --url is required")
	}
	return nil
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a skill whose SKILL.md declares llms.txt sources",
	Long: `Create <skills-dir>/<name>/SKILL.md with an llms-sources list, making the skill a
sync profile. An existing SKILL.md is never overwritten.

Examples:
  llmsync add stripe --url https://docs.stripe.com/llms.txt
  llmsync add vercel --url https://vercel.com/llms.txt --description "Vercel platform docs"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getAddConfigFromFlags(cmd)
		if err := config.Validate(); err != nil {
			presenter.Error(err, "Invalid add options")
			exitCode = 1
			return
		}

		path, err := profiles.Scaffold(config.SkillsDir, args[0], config.Description, config.URLs)
		if err != nil {
			presenter.Error(err, "Failed to create skill")
			exitCode = 1
			return
		}

		presenter.Success(fmt.Sprintf("Created %s", path))
		presenter.Info(fmt.Sprintf("Run 'llmsync sync %s' to fetch its sources", args[0]))
	},
}

func init() {
	defaults := NewAddConfig()
	addCmd.Flags().StringArray("url", defaults.URLs, "Source URL (repeatable, order preserved)")
	addCmd.Flags().String("description", defaults.Description, "Skill description")
}

func getAddConfigFromFlags(cmd *cobra.Command) *AddConfig {
	config := NewAddConfig()
	if urls, err := cmd.Flags().GetStringArray("url"); err == nil {
		config.URLs = urls
	}
	if description, err := cmd.Flags().GetString("description"); err == nil {
		config.Description = description
	}
	if skillsDir := viper.GetString("skills_dir"); skillsDir != "" {
		config.SkillsDir = skillsDir
	}
	config.SkillsDir = resolveSkillsDir(config.SkillsDir)
	return config
}
