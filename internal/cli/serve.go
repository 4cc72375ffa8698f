package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mgpai22/burnsub/internal/burn"
	"github.com/mgpai22/burnsub/internal/errs"
	"github.com/mgpai22/burnsub/internal/jobs"
	"github.com/mgpai22/burnsub/internal/server"
	"github.com/mgpai22/burnsub/internal/session"
	"github.com/mgpai22/burnsub/internal/subtitle"
	"github.com/mgpai22/burnsub/internal/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the caption editor HTTP API",
	Long: `Serve the HTTP API used by the caption editor: uploads, editing sessions,
live preview data, transcription and export jobs.

Examples:
  burnsub serve
  burnsub serve --addr 0.0.0.0:8000 -c burnsub.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

// stands in when the configured provider cannot be built, so the rest of
// the API still works
type unavailableTranscriber struct {
	err error
}

func (u unavailableTranscriber) Transcribe(context.Context, string, string) ([]subtitle.Segment, error) {
	return nil, errs.E(errs.KindTranscriptionFailed, "transcribe", u.err)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	var transcriber server.Transcriber
	svc, err := a.transcription("")
	if err != nil {
		logger.Warnw("Transcription disabled", "provider", cfg.Transcription.Provider, "error", err)
		transcriber = unavailableTranscriber{err: err}
	} else {
		transcriber = svc
	}

	runner := jobs.NewRunner(map[jobs.Kind]int{
		jobs.KindExport:     cfg.Burn.MaxConcurrent,
		jobs.KindTranscribe: 1,
	}, logger)
	runner.SetRetention(cfg.Server.JobRetention)

	pipeline := a.pipeline("")
	pipeline.OnTransition = func(jobID string, from, to burn.State) {
		runner.SetStage(jobID, string(to))
	}

	srv := server.New(server.Deps{
		Uploads:     upload.NewStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadMB<<20, logger),
		Sessions:    session.NewManager(a.catalog, cfg.Style),
		Jobs:        runner,
		Prober:      a.processor,
		Transcriber: transcriber,
		Burner:      pipeline,
		OutputDir:   pipeline.OutputDir,
		Logger:      logger,
	})

	logger.Infow("Starting server",
		"addr", addr,
		"uploads", cfg.Storage.UploadDir,
		"outputs", cfg.Storage.OutputDir,
		"provider", cfg.Transcription.Provider,
	)
	return srv.Run(cmd.Context(), addr)
}
