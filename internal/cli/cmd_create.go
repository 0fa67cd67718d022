package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/a1ezzz/wasp-backup/internal/backup"
)

type createFlags struct {
	inputs             []string
	output             string
	sudo               bool
	snapshot           string
	snapshotVolumeSize float64
	snapshotMountDir   string
	compression        string
	password           string
	cipherAlgorithm    string
	ioWriteRate        string
	uploadURL          string
	uploadAccessKeyID  string
	uploadSecretKey    string
	notifyProgram      string
}

func newCreateCommand() *cobra.Command {
	var f createFlags

	cmd := &cobra.Command{
		Use:     "create",
		Aliases: []string{"file-backup"},
		Short:   "Archive a set of filesystem paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := backup.LoadFileConfig(configPath)
			if err != nil {
				return err
			}
			applyCreateDefaults(&f, cfg)
			return runCreate(cmd, f, nil)
		},
	}

	cmd.Flags().StringArrayVar(&f.inputs, "input", nil, "source path to archive (repeatable)")
	cmd.Flags().StringVar(&f.output, "output", "", "archive file to write")
	cmd.Flags().BoolVar(&f.sudo, "sudo", false, "prefix LVM/mount invocations with sudo")
	cmd.Flags().StringVar(&f.snapshot, "snapshot", "auto", "snapshot policy: auto|forced|disabled")
	cmd.Flags().Float64Var(&f.snapshotVolumeSize, "snapshot-volume-size", 0.1, "fraction of origin volume to reserve for the snapshot")
	cmd.Flags().StringVar(&f.snapshotMountDir, "snapshot-mount-dir", "", "explicit snapshot mount directory")
	cmd.Flags().StringVar(&f.compression, "compression", "disabled", "compression mode: gzip|bzip2|disabled")
	cmd.Flags().StringVar(&f.password, "password", "", "enables AES encryption")
	cmd.Flags().StringVar(&f.cipherAlgorithm, "cipher_algorithm", "AES-256-CBC", "cipher algorithm name")
	cmd.Flags().StringVar(&f.ioWriteRate, "io-write-rate", "", "byte-rate cap, e.g. 1M")
	cmd.Flags().StringVar(&f.uploadURL, "upload-url", "", "optional s3:// URL to upload the verified archive to")
	cmd.Flags().StringVar(&f.uploadAccessKeyID, "upload-access-key-id", "", "static AWS access key ID, overriding the default credential chain")
	cmd.Flags().StringVar(&f.uploadSecretKey, "upload-secret-access-key", "", "static AWS secret access key, overriding the default credential chain")
	cmd.Flags().StringVar(&f.notifyProgram, "notify-program", "", "optional program invoked after a successful backup")

	cmd.MarkFlagRequired("output")
	return cmd
}

func newProgramBackupCommand() *cobra.Command {
	var f createFlags
	var programCmd []string

	cmd := &cobra.Command{
		Use:   "program-backup -- <command> [args...]",
		Short: "Archive the standard output of an external program",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := backup.LoadFileConfig(configPath)
			if err != nil {
				return err
			}
			applyCreateDefaults(&f, cfg)
			programCmd = args
			return runCreate(cmd, f, programCmd)
		},
	}

	cmd.Flags().StringVar(&f.output, "output", "", "archive file to write")
	cmd.Flags().StringVar(&f.compression, "compression", "disabled", "compression mode: gzip|bzip2|disabled")
	cmd.Flags().StringVar(&f.password, "password", "", "enables AES encryption")
	cmd.Flags().StringVar(&f.cipherAlgorithm, "cipher_algorithm", "AES-256-CBC", "cipher algorithm name")
	cmd.Flags().StringVar(&f.ioWriteRate, "io-write-rate", "", "byte-rate cap, e.g. 1M")
	cmd.Flags().StringVar(&f.uploadURL, "upload-url", "", "optional s3:// URL to upload the verified archive to")
	cmd.Flags().StringVar(&f.uploadAccessKeyID, "upload-access-key-id", "", "static AWS access key ID, overriding the default credential chain")
	cmd.Flags().StringVar(&f.uploadSecretKey, "upload-secret-access-key", "", "static AWS secret access key, overriding the default credential chain")
	cmd.Flags().StringVar(&f.notifyProgram, "notify-program", "", "optional program invoked after a successful backup")
	cmd.MarkFlagRequired("output")
	return cmd
}

func applyCreateDefaults(f *createFlags, cfg backup.FileConfig) {
	if len(f.inputs) == 0 {
		f.inputs = cfg.Input
	}
	if f.output == "" {
		f.output = cfg.Output
	}
	if !f.sudo {
		f.sudo = cfg.Sudo
	}
	if f.snapshot == "auto" && cfg.Snapshot != "" {
		f.snapshot = cfg.Snapshot
	}
	if f.snapshotVolumeSize == 0.1 && cfg.SnapshotVolumeSize != 0 {
		f.snapshotVolumeSize = cfg.SnapshotVolumeSize
	}
	if f.snapshotMountDir == "" {
		f.snapshotMountDir = cfg.SnapshotMountDir
	}
	if f.compression == "disabled" && cfg.Compression != "" {
		f.compression = cfg.Compression
	}
	if f.password == "" {
		f.password = cfg.Password
	}
	if f.cipherAlgorithm == "AES-256-CBC" && cfg.CipherAlgorithm != "" {
		f.cipherAlgorithm = cfg.CipherAlgorithm
	}
	if f.ioWriteRate == "" {
		f.ioWriteRate = cfg.IOWriteRate
	}
	if f.uploadURL == "" {
		f.uploadURL = cfg.UploadURL
	}
	if f.uploadAccessKeyID == "" {
		f.uploadAccessKeyID = cfg.UploadAccessKeyID
	}
	if f.uploadSecretKey == "" {
		f.uploadSecretKey = cfg.UploadSecretAccessKey
	}
	if f.notifyProgram == "" {
		f.notifyProgram = cfg.NotifyProgram
	}
	if !verbose {
		verbose = cfg.Verbose
	}
}

func runCreate(cmd *cobra.Command, f createFlags, programCmd []string) error {
	log := backup.DefaultLogger(verbose)

	compression, err := parseCompression(f.compression)
	if err != nil {
		return err
	}

	opts := backup.CreateOptions{
		Inputs:             f.inputs,
		ProgramCmd:         programCmd,
		Output:             f.output,
		Compression:        compression,
		HashAlgo:           backup.HashMD5,
		RateLimitBPS:       0,
		Snapshot:           backup.SnapshotPolicy(f.snapshot),
		SnapshotVolumeSize: f.snapshotVolumeSize,
		SnapshotMountDir:   f.snapshotMountDir,
		Sudo:               f.sudo,
	}

	if f.ioWriteRate != "" {
		rate, err := backup.ParseRate(f.ioWriteRate)
		if err != nil {
			return err
		}
		opts.RateLimitBPS = rate
	}

	if f.password != "" {
		spec, err := backup.ParseCipherName(f.cipherAlgorithm)
		if err != nil {
			return err
		}
		opts.CipherSpec = &spec
		opts.CipherPassword = []byte(f.password)
	}

	cancel := backup.NewCancelFlag()
	opts.Cancel = cancel

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		cancel.Request()
	}()

	archiver := backup.NewArchiver(log)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("archiving"),
		progressbar.OptionSpinnerType(14),
	)
	defer bar.Finish()

	meta, err := archiver.Create(ctx, opts)
	if err != nil {
		return err
	}
	bar.Finish()

	fmt.Fprintf(cmd.OutOrStdout(), "archive written: %s\n", f.output)

	result := backup.Verify(f.output)
	if result.Status != backup.VerifyPass {
		backup.UnlinkOnFailure(f.output)
		return fmt.Errorf("archive failed post-write verification: %s", result.Reason)
	}

	if f.uploadURL != "" {
		if err := backup.UploadArchive(ctx, f.output, f.uploadURL, f.uploadAccessKeyID, f.uploadSecretKey, log); err != nil {
			return err
		}
	}
	if f.notifyProgram != "" {
		metaTemp, err := backup.WriteMetaTempFile(meta)
		if err != nil {
			return err
		}
		if err := backup.NotifyArchiveReady(f.notifyProgram, f.output, metaTemp, log); err != nil {
			return err
		}
	}

	return nil
}

func parseCompression(s string) (backup.CompressionMode, error) {
	switch s {
	case "", "disabled", "none":
		return backup.CompressionNone, nil
	case "gzip", "gz":
		return backup.CompressionGzip, nil
	case "bzip2", "bz2":
		return backup.CompressionBzip2, nil
	default:
		return "", backup.InputError(nil, "invalid compression mode %q: expected gzip|bzip2|disabled", s)
	}
}
