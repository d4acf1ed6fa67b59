// Package docsync downloads llms.txt documentation digests from an ordered
// list of URLs and writes the successful ones, each annotated with its
// source, into a single output file.
//
// A run is one linear pass: fetch every URL in order, keep the bodies that
// arrived, and overwrite the output file only if at least one did.
package docsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/llmsync/pkg/logger"
	"github.com/jingkaihe/llmsync/pkg/telemetry"
)

var (
	// ErrNoFetcher is returned by NewSyncer when no HTTP client is available.
	ErrNoFetcher = errors.New("no fetcher configured")
	// ErrNoContent matches the error returned when every source failed.
	ErrNoContent = errors.New("no content fetched")
	// ErrDomainNotAllowed is returned for sources outside the allowlist.
	ErrDomainNotAllowed = errors.New("domain is not in the allowed domains list")
	// ErrEmptyBody is recorded for sources that answered 2xx with no content.
	ErrEmptyBody = errors.New("empty response body")
	// ErrMissingOutputDir is returned for targets whose directory must
	// already exist but does not.
	ErrMissingOutputDir = errors.New("output directory does not exist")
)

// NoContentError reports a run in which no source produced content.
// It matches ErrNoContent with errors.Is and unwraps to the per-URL failures.
type NoContentError struct {
	Target   string
	Failures *multierror.Error
}

func (e *NoContentError) Error() string {
	if e.Target == "" {
		return ErrNoContent.Error()
	}
	return fmt.Sprintf("%s for %s", ErrNoContent.Error(), e.Target)
}

// Is reports whether target is ErrNoContent.
func (e *NoContentError) Is(target error) bool {
	return target == ErrNoContent
}

func (e *NoContentError) Unwrap() error {
	return e.Failures.ErrorOrNil()
}

// Target is one sync job: an ordered URL list and the file it produces.
type Target struct {
	Name       string
	URLs       []string
	OutputPath string
	// RequireDir makes the run fail up front when the directory of
	// OutputPath is missing instead of creating it.
	RequireDir bool
}

// Validate checks that the target can be synced.
func (t Target) Validate() error {
	if len(t.URLs) == 0 {
		return errors.Errorf("target %q has no source URLs", t.Name)
	}
	if t.OutputPath == "" {
		return errors.Errorf("target %q has no output path", t.Name)
	}
	return nil
}

func (t Target) checkDir() error {
	if !t.RequireDir {
		return nil
	}
	dir := filepath.Dir(t.OutputPath)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return errors.Wrapf(ErrMissingOutputDir, "%s", dir)
	}
	return nil
}

// Failure records a source that was excluded from the output.
type Failure struct {
	URL string
	Err error
}

// Result describes a completed run.
type Result struct {
	RunID      string
	Target     string
	OutputPath string
	Blocks     []Block
	Failures   []Failure
	// Content is the combined output; empty when no block was fetched.
	Content string
	// Previous is what OutputPath held before the run.
	Previous string
	Written  bool
}

// Changed reports whether the run produced content different from the
// previous output.
func (r *Result) Changed() bool {
	return r.Content != r.Previous
}

// Diff returns the unified diff between the previous and new output.
func (r *Result) Diff() string {
	return Diff(r.OutputPath, r.Previous, r.Content)
}

// Reporter receives user-facing progress for a run.
type Reporter interface {
	Fetching(url string)
	FetchFailed(url string, err error)
	Saved(path string)
}

type nopReporter struct{}

func (nopReporter) Fetching(string)           {}
func (nopReporter) FetchFailed(string, error) {}
func (nopReporter) Saved(string)              {}

// Syncer sequences fetches across a target's URLs and writes the combined
// output.
type Syncer struct {
	fetcher  Fetcher
	reporter Reporter
	dryRun   bool
	newRunID func() string
}

// Option configures a Syncer
type Option func(*Syncer)

// WithReporter sets the progress reporter.
func WithReporter(reporter Reporter) Option {
	return func(s *Syncer) {
		if reporter != nil {
			s.reporter = reporter
		}
	}
}

// WithDryRun makes Run compute the output without writing it.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) {
		s.dryRun = dryRun
	}
}

// NewSyncer creates a Syncer. The fetcher is required.
func NewSyncer(fetcher Fetcher, opts ...Option) (*Syncer, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}

	s := &Syncer{
		fetcher:  fetcher,
		reporter: nopReporter{},
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run fetches every URL of target in order and overwrites target.OutputPath
// with the combined blocks. If no URL produced content it returns a
// *NoContentError and leaves the output file untouched.
func (s *Syncer) Run(ctx context.Context, target Target) (*Result, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := target.checkDir(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:      s.newRunID(),
		Target:     target.Name,
		OutputPath: target.OutputPath,
	}

	ctx = logger.WithFields(ctx, logrus.Fields{
		"run_id":  result.RunID,
		"profile": target.Name,
	})

	err := telemetry.WithSpan(ctx, "docsync.run", func(ctx context.Context) error {
		return s.run(ctx, target, result)
	},
		attribute.String("docsync.profile", target.Name),
		attribute.String("docsync.output", target.OutputPath),
		attribute.Int("docsync.sources", len(target.URLs)),
	)
	if err != nil {
		return result, err
	}

	return result, nil
}

func (s *Syncer) run(ctx context.Context, target Target, result *Result) error {
	log := logger.G(ctx)
	var failures *multierror.Error

	for _, u := range target.URLs {
		s.reporter.Fetching(u)

		body, err := s.fetch(ctx, u)
		if err != nil {
			log.WithError(err).WithField("url", u).Debug("failed to fetch source")
			s.reporter.FetchFailed(u, err)
			result.Failures = append(result.Failures, Failure{URL: u, Err: err})
			failures = multierror.Append(failures, errors.Wrapf(err, "failed to fetch %s", u))
			continue
		}

		log.WithField("url", u).WithField("bytes", len(body)).Debug("fetched source")
		result.Blocks = append(result.Blocks, Block{URL: u, Body: body})
	}

	telemetry.SetAttributes(ctx,
		attribute.Int("docsync.blocks", len(result.Blocks)),
		attribute.Int("docsync.failures", len(result.Failures)),
	)

	if len(result.Blocks) == 0 {
		return &NoContentError{Target: target.Name, Failures: failures}
	}

	result.Content = Combine(result.Blocks)

	previous, err := ReadOutput(target.OutputPath)
	if err != nil {
		log.WithError(err).Warn("failed to read previous output")
	}
	result.Previous = previous

	if s.dryRun {
		log.WithField("changed", result.Changed()).Info("dry run, output not written")
		return nil
	}

	if err := WriteOutput(target.OutputPath, result.Content); err != nil {
		return errors.Wrapf(err, "failed to save docs to %s", target.OutputPath)
	}
	result.Written = true

	log.WithField("path", target.OutputPath).
		WithField("blocks", len(result.Blocks)).
		WithField("changed", result.Changed()).
		Info("saved docs")
	s.reporter.Saved(target.OutputPath)

	return nil
}

func (s *Syncer) fetch(ctx context.Context, u string) (string, error) {
	var body string
	err := telemetry.WithSpan(ctx, "docsync.fetch", func(ctx context.Context) error {
		var err error
		body, err = s.fetcher.Fetch(ctx, u)
		if err != nil {
			return err
		}
		if body == "" {
			return ErrEmptyBody
		}
		telemetry.SetAttributes(ctx, attribute.Int("docsync.bytes", len(body)))
		return nil
	}, attribute.String("url", u))

	return body, err
}
