package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DukeRupert/cropbatch/internal"
	"github.com/DukeRupert/cropbatch/internal/domain"
	"github.com/DukeRupert/cropbatch/internal/service"
	"github.com/DukeRupert/cropbatch/internal/session"
	"github.com/DukeRupert/cropbatch/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// cropOptions are the flags of `cropctl crop`.
type cropOptions struct {
	OutDir       string
	Format       string
	Quality      int
	Ratio        string
	ManifestPath string
	MaxImageSize int64
	Verbose      bool
}

func newCropCmd() *cobra.Command {
	opts := cropOptions{}

	cmd := &cobra.Command{
		Use:   "crop FILE...",
		Short: "Crop and convert a batch of images",
		Long: `Crop every FILE to its aspect ratio and write the results to --out.

Non-image files are skipped. Files are processed in argument order; a file
that fails to export is reported and the rest continue.`,
		Example: `  # Square crops as PNG
  cropctl crop photos/*.jpg --out ./cropped

  # 16:9 JPEGs at quality 80
  cropctl crop a.png b.png --ratio 16:9 --format jpeg --quality 80

  # Per-file overrides
  cropctl crop *.png --manifest crops.yaml --format webp`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			logger := internal.NewLogger(cmd.ErrOrStderr(), "development", level)

			if err := applyEnvDefaults(cmd, &opts); err != nil {
				return err
			}
			return runCrop(cmd.Context(), opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "Directory to write cropped images to")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "png", "Output format (png, jpeg or webp)")
	cmd.Flags().IntVarP(&opts.Quality, "quality", "q", domain.DefaultQuality, "Quality for jpeg and webp (1-100)")
	cmd.Flags().StringVarP(&opts.Ratio, "ratio", "r", domain.DefaultAspectRatioID, "Aspect ratio for every file (see cropctl ratios)")
	cmd.Flags().StringVarP(&opts.ManifestPath, "manifest", "m", "", "YAML file with per-file ratio and crop overrides")
	cmd.Flags().Int64Var(&opts.MaxImageSize, "max-size", domain.MaxImageSize, "Largest accepted input file in bytes")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

// applyEnvDefaults fills format, quality and max-size from DEFAULT_FORMAT,
// DEFAULT_QUALITY and MAX_IMAGE_SIZE unless the flag was set explicitly.
func applyEnvDefaults(cmd *cobra.Command, opts *cropOptions) error {
	defaults, err := internal.ExportDefaultsFromEnv()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("format") {
		opts.Format = defaults.Export.Format.Extension()
	}
	if !flags.Changed("quality") {
		opts.Quality = defaults.Export.Quality
	}
	if !flags.Changed("max-size") {
		opts.MaxImageSize = defaults.MaxImageSize
	}
	return nil
}

// runCrop drives one batch through intake, crop overrides and export, then
// copies the exported files into opts.OutDir.
func runCrop(ctx context.Context, opts cropOptions, paths []string, stdout, stderr io.Writer, logger *slog.Logger) error {
	format, err := domain.ParseFormat(opts.Format)
	if err != nil {
		return errors.New(domain.ErrorMessage(err))
	}
	exportCfg := domain.ExportConfig{Format: format, Quality: opts.Quality}
	if err := exportCfg.Validate(); err != nil {
		return fmt.Errorf("quality must be between %d and %d", domain.MinQuality, domain.MaxQuality)
	}
	if !domain.IsValidAspectRatio(opts.Ratio) {
		return fmt.Errorf("unknown aspect ratio %q (see `cropctl ratios`)", opts.Ratio)
	}

	var manifest *Manifest
	if opts.ManifestPath != "" {
		if manifest, err = LoadManifest(opts.ManifestPath); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	// Originals and exports live in a scratch store; only the final files
	// land in the output directory.
	scratch, err := os.MkdirTemp("", "cropctl-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	st, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: scratch, BaseURL: "file://" + filepath.ToSlash(scratch)}, logger)
	if err != nil {
		return err
	}

	notices := service.NotifierFunc(func(_ uuid.UUID, notice domain.Notice) {
		fmt.Fprintf(stderr, "%s: %s\n", notice.Level, notice.Message)
	})

	store := session.NewStore()
	codec := service.NewImagingCodec()
	sessions := service.NewSessionService(store, st, service.NewPreviewRenderer(codec), service.SessionServiceConfig{DefaultExport: exportCfg}, logger)
	intake := service.NewIntakeService(store, st, codec, notices, service.IntakeServiceConfig{MaxImageSize: opts.MaxImageSize}, logger)
	exports := service.NewExportService(store, st, codec, notices, service.ExportServiceConfig{}, logger)

	sess, err := sessions.Create(ctx)
	if err != nil {
		return err
	}

	files, closeAll, err := openFiles(paths)
	if err != nil {
		return err
	}
	result, err := intake.Accept(ctx, sess.ID, files)
	closeAll()
	if err != nil {
		return errors.New(domain.ErrorMessage(err))
	}
	for _, rejected := range result.Rejected {
		fmt.Fprintf(stderr, "skipped %s (%s)\n", rejected.Filename, rejected.Reason)
	}

	for _, record := range result.Images {
		if !record.IsDecoded() {
			// Reported as a failure by the export below.
			continue
		}
		if err := applyOverrides(ctx, sessions, record, opts.Ratio, manifest.Entry(record.OriginalFilename)); err != nil {
			return fmt.Errorf("%s: %s", record.OriginalFilename, domain.ErrorMessage(err))
		}
	}

	if _, err := sessions.SetExportConfig(ctx, sess.ID, exportCfg); err != nil {
		return err
	}

	export, err := exports.Export(ctx, sess.ID)
	if err != nil {
		return errors.New(domain.ErrorMessage(err))
	}

	for _, artifact := range export.Artifacts {
		dest := filepath.Join(opts.OutDir, artifact.Filename)
		if err := copyArtifact(ctx, st, artifact.Key, dest); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s (%dx%d)\n", dest, artifact.Width, artifact.Height)
	}
	for _, failure := range export.Failures {
		fmt.Fprintf(stderr, "failed %s: %s\n", failure.Filename, failure.Message)
	}

	if len(export.Failures) > 0 {
		return fmt.Errorf("%d of %d images failed", len(export.Failures), len(export.Failures)+len(export.Artifacts))
	}
	return nil
}

// applyOverrides sets the ratio and crop for one record. A manifest ratio
// wins over the command-line ratio; an explicit crop or uncropped flag is
// applied last.
func applyOverrides(ctx context.Context, sessions service.SessionService, record domain.ImageRecord, defaultRatio string, entry ManifestEntry) error {
	ratio := entry.Ratio
	if ratio == "" {
		ratio = defaultRatio
	}
	if ratio != record.AspectRatioID() {
		if _, err := sessions.SetAspectRatio(ctx, record.SessionID, record.ID, ratio); err != nil {
			return err
		}
	}

	switch {
	case entry.Uncropped:
		_, err := sessions.ClearCrop(ctx, record.SessionID, record.ID)
		return err
	case entry.Crop != nil:
		_, err := sessions.SetCrop(ctx, record.SessionID, record.ID, entry.Crop.CropRect())
		return err
	}
	return nil
}

// openFiles opens every path in order. The returned func closes them all.
func openFiles(paths []string) ([]service.IncomingFile, func(), error) {
	var opened []*os.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	files := make([]service.IncomingFile, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		opened = append(opened, f)
		files = append(files, service.IncomingFile{
			Filename: filepath.Base(path),
			Data:     f,
		})
	}
	return files, closeAll, nil
}

func copyArtifact(ctx context.Context, st storage.Storage, key, dest string) error {
	rc, _, err := st.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read export %s: %w", key, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return out.Close()
}
