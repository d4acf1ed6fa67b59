package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jingkaihe/llmsync/pkg/presenter"
	"github.com/jingkaihe/llmsync/pkg/profiles"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ListConfig holds configuration for the list command
type ListConfig struct {
	JSON      bool
	SkillsDir string
}

// NewListConfig creates a new ListConfig with default values
func NewListConfig() *ListConfig {
	return &ListConfig{
		JSON:      false,
		SkillsDir: profiles.DefaultSkillsDir,
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sync profiles",
	Long: `List every profile llmsync knows about: SKILL.md manifests declaring llms-sources,
profiles from the config file, and the builtin set.`,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getListConfigFromFlags(cmd)

		registry, err := buildRegistry(config.SkillsDir)
		if err != nil {
			presenter.Error(err, "Failed to load profiles")
			exitCode = 1
			return
		}

		if err := listProfiles(os.Stdout, registry.List(), config.JSON); err != nil {
			presenter.Error(err, "Failed to list profiles")
			exitCode = 1
			return
		}
	},
}

func init() {
	defaults := NewListConfig()
	listCmd.Flags().Bool("json", defaults.JSON, "Output as JSON")
}

func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	config := NewListConfig()
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = asJSON
	}
	if skillsDir := viper.GetString("skills_dir"); skillsDir != "" {
		config.SkillsDir = skillsDir
	}
	config.SkillsDir = resolveSkillsDir(config.SkillsDir)
	return config
}

type profileEntry struct {
	*profiles.Profile
	Output string `json:"output"`
	Synced bool   `json:"synced"`
}

func newProfileEntries(all []*profiles.Profile) []profileEntry {
	entries := make([]profileEntry, 0, len(all))
	for _, p := range all {
		_, err := os.Stat(p.OutputPath())
		entries = append(entries, profileEntry{
			Profile: p,
			Output:  p.OutputPath(),
			Synced:  err == nil,
		})
	}
	return entries
}

func listProfiles(w io.Writer, all []*profiles.Profile, asJSON bool) error {
	entries := newProfileEntries(all)

	if asJSON {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal profiles")
		}
		fmt.Fprintln(w, string(out))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tORIGIN\tSYNCED\tSOURCES\tOUTPUT")
	fmt.Fprintln(tw, "----\t------\t------\t-------\t------")

	for _, e := range entries {
		synced := "no"
		if e.Synced {
			synced = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Origin, synced, strings.Join(e.URLs, ","), e.Output)
	}
	return tw.Flush()
}
