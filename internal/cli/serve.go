package cli

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/siteforge/internal/attachment"
	"github.com/lucasnoah/siteforge/internal/config"
	"github.com/lucasnoah/siteforge/internal/events"
	"github.com/lucasnoah/siteforge/internal/generate"
	"github.com/lucasnoah/siteforge/internal/notify"
	"github.com/lucasnoah/siteforge/internal/pages"
	"github.com/lucasnoah/siteforge/internal/pipeline"
	"github.com/lucasnoah/siteforge/internal/repo"
	"github.com/lucasnoah/siteforge/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task service",
	Long: `Start the HTTP service accepting build and revise requests.

The service refuses to start on an invalid configuration. Missing credentials
are a warning, not an error: without SITEFORGE_SECRET every request is
rejected, which is the safe default for a misconfigured deployment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "config: %s\n", e)
			}
			return fmt.Errorf("config has %d validation error(s)", len(errs))
		}
		for _, e := range config.ValidateCredentials(cfg) {
			log.Printf("serve: warning: %s", e)
		}

		eventLog, err := openEvents(cfg)
		if err != nil {
			return err
		}
		defer eventLog.Close()

		controller := buildController(cfg, eventLog)
		return web.NewServer(controller, cfg, version).Start()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}

// openEvents connects the run-event log, or returns a no-op logger when no
// DATABASE_URL is configured.
func openEvents(cfg *config.Config) (events.Logger, error) {
	if cfg.EventsDSN == "" {
		log.Printf("serve: no DATABASE_URL, run events will not be recorded")
		return events.Nop{}, nil
	}
	db, err := events.Open(cfg.EventsDSN)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate events db: %w", err)
	}
	return db, nil
}

// buildController assembles the pipeline from configuration.
func buildController(cfg *config.Config, eventLog events.Logger) *pipeline.Controller {
	genRunner := &generate.ExecRunner{}
	backends := make([]generate.Generator, 0, len(cfg.Generation.Backends))
	for _, b := range cfg.Generation.Backends {
		backends = append(backends,
			generate.NewCLIBackend(b.Name, b.Command, b.Args, b.BackendTimeout(), genRunner))
	}

	gh := &repo.ExecRunner{}
	return pipeline.NewController(pipeline.Options{
		Secret:            cfg.Secret,
		Codec:             attachment.NewCodec(cfg.Attachments.MaxBytes),
		Generator:         generate.NewChain(backends...),
		Repos:             repo.NewGitHubWithGit(gh, gh, cfg.GitHub.Owner, cfg.GitHub.RepoPrefix, cfg.GitHub.StageDir, cfg.GitHubTimeout()),
		Publisher:         pages.NewGitHubPages(gh, cfg.GitHubTimeout()),
		Notifier:          notify.NewDispatcher(&http.Client{Timeout: cfg.NotifyTimeout()}, cfg.NotifyPolicy()),
		Events:            eventLog,
		Retry:             cfg.RetryPolicy(),
		PublishFailClosed: cfg.Publish.FailClosed,
	})
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}
