package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kestrel-labs/codeindex/internal/config"
	"github.com/kestrel-labs/codeindex/internal/observability"
	"github.com/kestrel-labs/codeindex/internal/vectordb"
	"github.com/kestrel-labs/codeindex/pkg/checkpoint"
	"github.com/kestrel-labs/codeindex/pkg/gitlib"
	"github.com/kestrel-labs/codeindex/pkg/indexing"
	"github.com/kestrel-labs/codeindex/pkg/probe"
)

const sessionStartArgCount = 1

// NewSessionStartCommand builds the `session-start` subcommand: it runs the
// health probe against a project and exits 0 (fresh) or 1 (warnings),
// never 2 — that code is reserved for argument validation.
func NewSessionStartCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session-start <project-path>",
		Short: "Check whether an existing index is fresh enough to rely on",
		Args:  cobra.ExactArgs(sessionStartArgCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			runSessionStart(cmd.Context(), *configPath, args[0])

			return nil
		},
	}

	return cmd
}

// runSessionStart exits the process directly rather than returning an
// error: a probe warning (exit 1) and a clean pass (exit 0) are both
// ordinary outcomes, not Go errors, and must never be confused with the
// generic failure path main.go applies to an unexpected RunE error.
func runSessionStart(ctx context.Context, configPath, projectPath string) {
	applyColorOverrides()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	providers, obsErr := observability.Init(buildObservabilityConfig(cfg))
	if obsErr != nil {
		fmt.Fprintf(os.Stderr, "Error: init observability: %v\n", obsErr)
		os.Exit(1)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		_ = providers.Shutdown(shutdownCtx)
	}()

	probeCfg := probe.Config{
		Collection: cfg.VectorDB.Collection,
		CacheDir:   checkpoint.DefaultDir(projectPath),
	}

	// db and repo are typed pointers; assigning a nil *T to an interface
	// field produces a non-nil interface, so each is only wired in when
	// the best-effort dial/open actually succeeded.
	if db := dialBestEffort(ctx, cfg); db != nil {
		defer db.Close()

		probeCfg.VectorDB = db
	}

	if repo := openRepoBestEffort(projectPath); repo != nil {
		defer repo.Free()

		probeCfg.Repo = repo
	}

	probeCtx, span := providers.Tracer.Start(ctx, "codeindex.session_start.probe")
	result := probe.Execute(probeCtx, probeCfg)
	span.End()

	renderSessionStart(result)
	os.Exit(result.ExitCode())
}

func dialBestEffort(ctx context.Context, cfg *config.Config) *vectordb.Client {
	connectTimeout, parseErr := time.ParseDuration(cfg.VectorDB.ConnectTimeout)
	if parseErr != nil {
		connectTimeout = vectordb.DefaultConnectTimeout
	}

	db, err := vectordb.Dial(ctx, vectordb.Config{
		Host:           cfg.VectorDB.Host,
		Port:           cfg.VectorDB.Port,
		APIKey:         cfg.VectorDB.APIKey,
		UseTLS:         cfg.VectorDB.UseTLS,
		ConnectTimeout: connectTimeout,
	})
	if err != nil {
		return nil
	}

	return db
}

func openRepoBestEffort(projectPath string) *gitlib.Repository {
	repo, err := gitlib.OpenRepository(projectPath)
	if err != nil {
		return nil
	}

	return repo
}

// applyColorOverrides honors NO_COLOR/FORCE_COLOR on top of fatih/color's
// isatty default, matching the precedence FORCE_COLOR > NO_COLOR > auto.
func applyColorOverrides() {
	if os.Getenv("NO_COLOR") != "" {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	if os.Getenv("FORCE_COLOR") != "" {
		color.NoColor = false //nolint:reassign // intentional override of library global
	}
}

func renderSessionStart(r indexing.SessionStartResult) {
	pass := color.New(color.FgGreen)
	fail := color.New(color.FgRed)
	warn := color.New(color.FgYellow)

	printCheck(pass, fail, "vector database", r.QdrantStatus, r.QdrantError)
	printCheck(pass, fail, "collection", r.CollectionStatus, r.CollectionError)

	if r.CollectionStatus == indexing.CheckPass {
		fmt.Fprintf(os.Stdout, "  vectors: %s\n", humanize.Comma(r.VectorCount))
	}

	if r.Freshness.IsFresh {
		pass.Fprintf(os.Stdout, "index: fresh")
	} else {
		warn.Fprintf(os.Stdout, "index: stale (%s)", r.Freshness.Suggestion)
	}

	if r.Freshness.LastIndexedTime != 0 {
		fmt.Fprintf(os.Stdout, ", last indexed %s", humanize.Time(time.Unix(r.Freshness.LastIndexedTime, 0)))
	}

	fmt.Fprintln(os.Stdout)

	if r.VCS.Branch != "" {
		fmt.Fprintf(os.Stdout, "branch: %s, %d uncommitted file(s)\n", r.VCS.Branch, r.VCS.UncommittedFiles)
	}

	for _, subject := range r.VCS.RecentSubjects {
		fmt.Fprintf(os.Stdout, "  - %s\n", subject)
	}

	for _, w := range r.Warnings {
		warn.Fprintf(os.Stdout, "warning: %s\n", w)
	}
}

func printCheck(pass, fail *color.Color, label string, status indexing.CheckStatus, detail string) {
	switch status {
	case indexing.CheckPass:
		pass.Fprintf(os.Stdout, "%s: ok\n", label)
	case indexing.CheckFail:
		fail.Fprintf(os.Stdout, "%s: FAILED (%s)\n", label, detail)
	case indexing.CheckSkip:
		fmt.Fprintf(os.Stdout, "%s: skipped\n", label)
	}
}
