package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/llmsync/pkg/docsync"
	"github.com/jingkaihe/llmsync/pkg/logger"
	"github.com/jingkaihe/llmsync/pkg/presenter"
	"github.com/jingkaihe/llmsync/pkg/profiles"
	"github.com/jingkaihe/llmsync/pkg/telemetry"
	"github.com/jingkaihe/llmsync/pkg/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// SyncConfig holds configuration for the sync command
type SyncConfig struct {
	Profiles           []string
	URLs               []string
	Output             string
	Timeout            time.Duration
	DryRun             bool
	ShowDiff           bool
	SkillsDir          string
	UserAgent          string
	AllowedDomains     []string
	AllowedDomainsFile string
}

// NewSyncConfig creates a new SyncConfig with default values
func NewSyncConfig() *SyncConfig {
	return &SyncConfig{
		Profiles:  []string{},
		URLs:      []string{},
		Output:    "",
		Timeout:   docsync.DefaultTimeout,
		DryRun:    false,
		ShowDiff:  false,
		SkillsDir: profiles.DefaultSkillsDir,
	}
}

// Validate rejects flag combinations that do not describe a single sync mode.
func (c *SyncConfig) Validate() error {
	if len(c.URLs) > 0 && len(c.Profiles) > 0 {
		return errors.New("profile names cannot be combined with --url")
	}
	if len(c.URLs) > 0 && c.Output == "" {
		return errors.New("--output is required when --url is given")
	}
	if c.Output != "" && len(c.URLs) == 0 {
		return errors.New("--output can only be used with --url")
	}
	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

var syncCmd = &cobra.Command{
	Use:   "sync [profile...]",
	Short: "Fetch llms.txt sources and write llms-source.txt",
	Long: `Fetch every source URL of the selected profiles in order and overwrite each
profile's llms-source.txt with the successful responses. Without arguments all
known profiles are synced.

A URL that fails (network error, timeout, non-2xx status) is reported and
skipped. If no URL of a profile succeeds, the file is left untouched and the
command exits with status 1.

Examples:
  llmsync sync
  llmsync sync convex coolify
  llmsync sync --url https://docs.convex.dev/llms.txt --output ./llms-source.txt
  llmsync sync coolify --dry-run --diff`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getSyncConfigFromFlags(cmd, args)

		if err := config.Validate(); err != nil {
			presenter.Error(err, "Invalid sync options")
			exitCode = 1
			return
		}

		if err := runSync(ctx, config, presenter.Default()); err != nil {
			exitCode = 1
		}
	},
}

func init() {
	defaults := NewSyncConfig()
	syncCmd.Flags().StringArray("url", defaults.URLs, "Source URL to fetch instead of a profile (repeatable, order preserved)")
	syncCmd.Flags().StringP("output", "o", defaults.Output, "Output file for --url sources")
	syncCmd.Flags().Duration("timeout", defaults.Timeout, "Timeout for each request")
	syncCmd.Flags().Bool("dry-run", defaults.DryRun, "Fetch and report without writing any file")
	syncCmd.Flags().Bool("diff", defaults.ShowDiff, "Show a unified diff against the current output")

	viper.BindPFlag("timeout", syncCmd.Flags().Lookup("timeout"))
}

// getSyncConfigFromFlags extracts sync configuration from command flags and
// the merged viper configuration.
func getSyncConfigFromFlags(cmd *cobra.Command, args []string) *SyncConfig {
	config := NewSyncConfig()
	config.Profiles = args

	if urls, err := cmd.Flags().GetStringArray("url"); err == nil {
		config.URLs = urls
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if diff, err := cmd.Flags().GetBool("diff"); err == nil {
		config.ShowDiff = diff
	}

	if timeout := viper.GetDuration("timeout"); timeout != 0 {
		config.Timeout = timeout
	}
	if skillsDir := viper.GetString("skills_dir"); skillsDir != "" {
		config.SkillsDir = skillsDir
	}
	config.SkillsDir = resolveSkillsDir(config.SkillsDir)
	config.UserAgent = viper.GetString("user_agent")
	config.AllowedDomains = viper.GetStringSlice("allowed_domains")
	config.AllowedDomainsFile = viper.GetString("allowed_domains_file")

	return config
}

// buildRegistry merges skill manifests, configured profiles and builtins.
func buildRegistry(skillsDir string) (*profiles.Registry, error) {
	discovered, err := profiles.NewDiscovery(profiles.WithSkillDirs(skillsDir)).Discover()
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover skill manifests")
	}

	configured, err := profiles.FromConfig(skillsDir, viper.GetStringMap("profiles"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid profiles configuration")
	}

	return profiles.NewRegistry(discovered, configured, profiles.Builtins(skillsDir)), nil
}

// resolveTargets turns the config into sync targets. When no profile is named,
// profiles whose skill directory is missing are skipped; a named profile with
// a missing directory is kept so the run reports it.
func resolveTargets(config *SyncConfig, p presenter.Presenter) ([]docsync.Target, error) {
	if len(config.URLs) > 0 {
		return []docsync.Target{{
			URLs:       config.URLs,
			OutputPath: config.Output,
		}}, nil
	}

	registry, err := buildRegistry(config.SkillsDir)
	if err != nil {
		return nil, err
	}

	selected, err := registry.Select(config.Profiles)
	if err != nil {
		return nil, err
	}

	targets := make([]docsync.Target, 0, len(selected))
	for _, profile := range selected {
		if len(config.Profiles) == 0 && !profile.Exists() {
			p.Info(fmt.Sprintf("Skipping %s: %s does not exist", profile.Name, profile.Directory))
			continue
		}
		targets = append(targets, profile.Target())
	}

	if len(targets) == 0 {
		return nil, errors.Errorf("no profile has a skill directory under %s", config.SkillsDir)
	}
	return targets, nil
}

func newFetcher(ctx context.Context, config *SyncConfig) *docsync.HTTPFetcher {
	filter := utils.NewDomainFilter(config.AllowedDomainsFile, config.AllowedDomains...)
	if allowed := filter.GetAllowedDomains(); len(allowed) > 0 {
		logger.G(ctx).WithField("allowed_domains", allowed).Debug("restricting sources to allowed domains")
	}

	opts := []docsync.FetcherOption{
		docsync.WithTimeout(config.Timeout),
		docsync.WithAllower(filter),
	}
	if config.UserAgent != "" {
		opts = append(opts, docsync.WithUserAgent(config.UserAgent))
	}
	return docsync.NewHTTPFetcher(opts...)
}

// runSync syncs every resolved target in turn. Each failed target is
// reported through p; the returned error aggregates them.
func runSync(ctx context.Context, config *SyncConfig, p presenter.Presenter) error {
	targets, err := resolveTargets(config, p)
	if err != nil {
		p.Error(err, "Failed to resolve sync targets")
		return err
	}

	syncer, err := docsync.NewSyncer(
		newFetcher(ctx, config),
		docsync.WithReporter(&presenterReporter{p: p}),
		docsync.WithDryRun(config.DryRun),
	)
	if err != nil {
		p.Error(err, "Failed to initialize syncer")
		return err
	}

	var errs *multierror.Error
	for i, target := range targets {
		if len(targets) > 1 {
			if i > 0 {
				p.Separator()
			}
			p.Section(target.Name)
		}

		result, err := syncer.Run(ctx, target)
		if err != nil {
			switch {
			case errors.Is(err, docsync.ErrNoContent):
				p.Error(docsync.ErrNoContent, target.Name)
			case errors.Is(err, docsync.ErrMissingOutputDir):
				p.Error(err, fmt.Sprintf("Skill directory for %s not found; create it with 'llmsync add' or run from the repository", target.Name))
			default:
				p.Error(err, fmt.Sprintf("Failed to sync %s", target.OutputPath))
			}
			telemetry.RecordError(ctx, err)
			errs = multierror.Append(errs, err)
			continue
		}

		reportResult(p, config, result)
	}

	return errs.ErrorOrNil()
}

func reportResult(p presenter.Presenter, config *SyncConfig, result *docsync.Result) {
	if config.DryRun {
		p.Info("Dry run, nothing written")
		p.Field("output", result.OutputPath)
		p.Field("fetched", fmt.Sprintf("%d of %d sources", len(result.Blocks), len(result.Blocks)+len(result.Failures)))
		p.Field("bytes", fmt.Sprintf("%d", len(result.Content)))
	}

	if config.ShowDiff && !p.IsQuiet() {
		if result.Changed() {
			p.Diff(result.Diff())
		} else {
			p.Info(fmt.Sprintf("No changes to %s", result.OutputPath))
		}
	}
}

// presenterReporter prints sync progress through a presenter.
type presenterReporter struct {
	p presenter.Presenter
}

func (r *presenterReporter) Fetching(url string) {
	r.p.Info(fmt.Sprintf("Fetching %s", url))
}

func (r *presenterReporter) FetchFailed(url string, err error) {
	r.p.Warning(fmt.Sprintf("Failed to fetch %s: %v", url, err))
}

func (r *presenterReporter) Saved(path string) {
	r.p.Success(fmt.Sprintf("Saved docs to %s", path))
}
