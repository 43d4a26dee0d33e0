// Command grz drives one clinical-genomics submission through validate,
// encrypt, upload, archive, and the corresponding download/decrypt steps,
// resuming from its on-disk ledgers wherever earlier work already ran
// (spec.md §4.6).
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grz-tools/grz-submit-core/internal/archive"
	"github.com/grz-tools/grz-submit-core/internal/config"
	"github.com/grz-tools/grz-submit-core/internal/crypt4gh"
	"github.com/grz-tools/grz-submit-core/internal/grzerr"
	"github.com/grz-tools/grz-submit-core/internal/metadata"
	"github.com/grz-tools/grz-submit-core/internal/objectstore"
	"github.com/grz-tools/grz-submit-core/internal/submission"
	"github.com/grz-tools/grz-submit-core/internal/version"
	"github.com/grz-tools/grz-submit-core/internal/worker"
)

func main() {
	app := kingpin.New("grz", "Validates, encrypts, uploads, and archives clinical-genomics submissions.")
	app.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("grz")).Author("grz-tools")
	app.HelpFlag.Short('h')

	configFile := app.Flag("config", "Path to the YAML configuration file.").Short('c').Default("config.yaml").String()
	logLevel := app.Flag("log-level", "Logging level: debug, info, warn, error.").Default("info").String()
	logFile := app.Flag("log-file", "Write logs to this file instead of stderr.").String()
	threads := app.Flag("threads", "Number of worker goroutines per stage.").Short('t').Default("4").Int()
	force := app.Flag("force", "Discard cached ledger state and recompute from scratch.").Bool()

	validateCmd := app.Command("validate", "Validate metadata and files without encrypting or uploading.")
	validateDir := validateCmd.Arg("submission-dir", "Submission directory.").Default(".").String()
	validateSkipExternal := validateCmd.Flag("no-external-checker", "Never delegate to grz-check even if it is on PATH.").Bool()

	encryptCmd := app.Command("encrypt", "Crypt4GH-encrypt every validated file.")
	encryptDir := encryptCmd.Arg("submission-dir", "Submission directory.").Default(".").String()

	uploadCmd := app.Command("upload", "Upload every encrypted file plus the metadata document.")
	uploadDir := uploadCmd.Arg("submission-dir", "Submission directory.").Default(".").String()

	submitCmd := app.Command("submit", "Run validate, encrypt, and upload in sequence.")
	submitDir := submitCmd.Arg("submission-dir", "Submission directory.").Default(".").String()
	submitSkipExternal := submitCmd.Flag("no-external-checker", "Never delegate to grz-check even if it is on PATH.").Bool()

	archiveCmd := app.Command("archive", "Upload, redact the metadata document, and upload logs.")
	archiveDir := archiveCmd.Arg("submission-dir", "Submission directory.").Default(".").String()

	downloadCmd := app.Command("download", "Download a submission's metadata and encrypted files.")
	downloadDir := downloadCmd.Arg("submission-dir", "Directory to download into.").Default(".").String()
	downloadID := downloadCmd.Arg("submission-id", "Submission identifier to download.").Required().String()

	decryptCmd := app.Command("decrypt", "Decrypt every downloaded file back into files/.")
	decryptDir := decryptCmd.Arg("submission-dir", "Submission directory.").Default(".").String()

	listCmd := app.Command("list", "List submission prefixes in the object store and their lifecycle state.")

	cleanCmd := app.Command("clean", "Delete every object under a submission's prefix.")
	cleanID := cleanCmd.Arg("submission-id", "Submission identifier to clean.").Required().String()

	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("%v", err)
	}

	log := newLogger(*logLevel, *logFile)
	ctx := context.Background()

	var runErr error
	switch cmd {
	case validateCmd.FullCommand():
		runErr = runValidate(ctx, log, *configFile, *validateDir, *threads, *force, !*validateSkipExternal)
	case encryptCmd.FullCommand():
		runErr = runEncrypt(ctx, log, *configFile, *encryptDir, *threads, *force)
	case uploadCmd.FullCommand():
		runErr = runUpload(ctx, log, *configFile, *uploadDir, *threads, *force)
	case submitCmd.FullCommand():
		runErr = runSubmit(ctx, log, *configFile, *submitDir, *threads, *force, !*submitSkipExternal)
	case archiveCmd.FullCommand():
		runErr = runArchive(ctx, log, *configFile, *archiveDir, *threads, *force)
	case downloadCmd.FullCommand():
		runErr = runDownload(ctx, log, *configFile, *downloadDir, *downloadID, *threads, *force)
	case decryptCmd.FullCommand():
		runErr = runDecrypt(ctx, log, *configFile, *decryptDir, *threads, *force)
	case listCmd.FullCommand():
		runErr = runList(ctx, log, *configFile)
	case cleanCmd.FullCommand():
		runErr = runClean(ctx, log, *configFile, *cleanID)
	}

	if runErr != nil {
		log.Errorf("%v", runErr)
		if runErr == grzerr.ErrCancelled {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func newLogger(level, file string) *logrus.Entry {
	logger := logrus.New()
	switch level {
	case "debug":
		logger.Level = logrus.DebugLevel
	case "warn":
		logger.Level = logrus.WarnLevel
	case "error":
		logger.Level = logrus.ErrorLevel
	default:
		logger.Level = logrus.InfoLevel
	}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			logger.Errorf("grz: open log file %s: %v, logging to stderr", file, err)
		} else {
			logger.SetOutput(f)
		}
	}
	return logrus.NewEntry(logger)
}

func loadConfig(configFile string) (*config.Config, error) {
	return config.LoadConfigFile(configFile)
}

func newClient(ctx context.Context, cfg *config.Config) (objectstore.Client, error) {
	accessKey, secret := cfg.S3.ResolveCredentials()
	return objectstore.NewS3Client(ctx, objectstore.S3Options{
		Bucket:       cfg.S3.Bucket,
		Region:       cfg.S3.RegionName,
		EndpointURL:  cfg.S3.EndpointURL,
		AccessKey:    accessKey,
		SecretKey:    secret,
		SessionToken: cfg.S3.SessionToken,
		UsePathStyle: true,
	})
}

// recipientPublicKey resolves the configured GRZ public key, accepting
// either a raw base64-encoded inline value or a path to an armored Crypt4GH
// public key file; exactly one of the two is set per config.Config.validate.
func recipientPublicKey(cfg *config.Config) ([32]byte, error) {
	if cfg.Keys.GRZPublicKey != "" {
		raw, err := base64.StdEncoding.DecodeString(cfg.Keys.GRZPublicKey)
		if err != nil {
			return [32]byte{}, fmt.Errorf("grz: decode inline grz_public_key: %w", err)
		}
		if len(raw) != 32 {
			return [32]byte{}, fmt.Errorf("grz: inline grz_public_key must decode to 32 bytes, got %d", len(raw))
		}
		var pub [32]byte
		copy(pub[:], raw)
		return pub, nil
	}
	return crypt4gh.ReadPublicKeyFile(cfg.Keys.GRZPublicKeyPath)
}

func senderPrivateKey(cfg *config.Config) (*[32]byte, error) {
	if cfg.Keys.SubmitterPrivateKeyPath == "" {
		return nil, nil
	}
	sk, err := crypt4gh.ReadPrivateKeyFile(cfg.Keys.SubmitterPrivateKeyPath, crypt4gh.DefaultPassphrase(cfg.Keys.SubmitterPrivateKeyPath, os.Stdin))
	if err != nil {
		return nil, err
	}
	return &sk, nil
}

func recipientPrivateKey(cfg *config.Config) ([32]byte, error) {
	if cfg.Keys.GRZPrivateKeyPath == "" {
		return [32]byte{}, fmt.Errorf("grz: keys.grz_private_key_path is required to decrypt")
	}
	return crypt4gh.ReadPrivateKeyFile(cfg.Keys.GRZPrivateKeyPath, crypt4gh.DefaultPassphrase(cfg.Keys.GRZPrivateKeyPath, os.Stdin))
}

func resolveAndBuildWorker(dir string, threads int, log *logrus.Entry) (*submission.Resolved, *worker.Worker, error) {
	resolved, err := submission.Resolve(dir)
	if err != nil {
		return nil, nil, err
	}
	w, err := worker.New(dir, threads, log.WithField("submission_id", resolved.SubmissionID))
	if err != nil {
		return nil, nil, err
	}
	return resolved, w, nil
}

func runValidate(ctx context.Context, log *logrus.Entry, configFile, dir string, threads int, force, tryExternal bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	if tryExternal {
		checkErr := config.RunExternalChecker(ctx, dir)
		switch {
		case checkErr == nil:
			log.Info("validate: grz-check passed")
			return nil
		case checkErr == config.ErrCheckerNotFound:
			log.Debug("validate: grz-check not found on PATH, falling back to built-in checks")
		default:
			return checkErr
		}
	}

	resolved, w, err := resolveAndBuildWorker(dir, threads, log)
	if err != nil {
		return err
	}

	diags, err := worker.ValidateMetadata(resolved.Document, cfg.Identifiers.GRZ, cfg.Identifiers.LE)
	if err != nil {
		return err
	}
	for _, d := range diags {
		log.WithField("severity", d.Severity.String()).Info(d.Message)
	}
	if metadata.HasErrors(diags) {
		errCount := 0
		for _, d := range diags {
			if d.Severity == metadata.SeverityError {
				errCount++
			}
		}
		return fmt.Errorf("grz: metadata validation failed with %d error(s)", errCount)
	}

	results, err := w.ValidateFiles(ctx, resolved.Units, force)
	if err != nil {
		return err
	}
	if failed := worker.Failures(results); len(failed) > 0 {
		return fmt.Errorf("grz: %d file(s) failed validation", len(failed))
	}
	log.Info("validate: ok")
	return nil
}

func runEncrypt(ctx context.Context, log *logrus.Entry, configFile, dir string, threads int, force bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	recipientPub, err := recipientPublicKey(cfg)
	if err != nil {
		return err
	}
	senderPriv, err := senderPrivateKey(cfg)
	if err != nil {
		return err
	}

	resolved, w, err := resolveAndBuildWorker(dir, threads, log)
	if err != nil {
		return err
	}

	results, err := w.EncryptFiles(ctx, resolved.Units, recipientPub, senderPriv, force)
	if err != nil {
		return err
	}
	if failed := worker.Failures(results); len(failed) > 0 {
		return fmt.Errorf("grz: %d file(s) failed to encrypt", len(failed))
	}
	log.Info("encrypt: ok")
	return nil
}

func runUpload(ctx context.Context, log *logrus.Entry, configFile, dir string, threads int, force bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	resolved, w, err := resolveAndBuildWorker(dir, threads, log)
	if err != nil {
		return err
	}

	metadataPath := resolved.Layout.MetadataDir + "/" + submission.MetadataFileName
	results, err := w.UploadFiles(ctx, client, resolved.Units, resolved.SubmissionID, metadataPath, cfg.S3.MultipartChunksize, force)
	if err != nil {
		return err
	}
	if failed := worker.Failures(results); len(failed) > 0 {
		return fmt.Errorf("grz: %d file(s) failed to upload", len(failed))
	}
	log.Infof("upload: submission %s ok", resolved.SubmissionID)
	return nil
}

func runSubmit(ctx context.Context, log *logrus.Entry, configFile, dir string, threads int, force, tryExternal bool) error {
	if err := runValidate(ctx, log, configFile, dir, threads, force, tryExternal); err != nil {
		return err
	}
	if err := runEncrypt(ctx, log, configFile, dir, threads, force); err != nil {
		return err
	}
	return runUpload(ctx, log, configFile, dir, threads, force)
}

func runArchive(ctx context.Context, log *logrus.Entry, configFile, dir string, threads int, force bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	resolved, w, err := resolveAndBuildWorker(dir, threads, log)
	if err != nil {
		return err
	}

	if _, err := archive.Run(ctx, w, client, resolved, cfg.S3.MultipartChunksize, force); err != nil {
		return err
	}
	log.Infof("archive: submission %s ok", resolved.SubmissionID)
	return nil
}

func runDownload(ctx context.Context, log *logrus.Entry, configFile, dir, submissionID string, threads int, force bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	w, err := worker.New(dir, threads, log.WithField("submission_id", submissionID))
	if err != nil {
		return err
	}

	if _, err := w.DownloadFiles(ctx, client, nil, submissionID, cfg.S3.MultipartChunksize, force); err != nil {
		return err
	}

	metadataPath := w.Layout.MetadataDir + "/" + submission.MetadataFileName
	doc, err := submission.LoadDocument(metadataPath)
	if err != nil {
		return err
	}
	units := submission.CollectUnits(doc)

	results, err := w.DownloadFiles(ctx, client, units, submissionID, cfg.S3.MultipartChunksize, force)
	if err != nil {
		return err
	}
	if failed := worker.Failures(results); len(failed) > 0 {
		return fmt.Errorf("grz: %d file(s) failed to download", len(failed))
	}
	log.Infof("download: submission %s ok", submissionID)
	return nil
}

func runDecrypt(ctx context.Context, log *logrus.Entry, configFile, dir string, threads int, force bool) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	recipientPriv, err := recipientPrivateKey(cfg)
	if err != nil {
		return err
	}

	w, err := worker.New(dir, threads, log)
	if err != nil {
		return err
	}
	metadataPath := w.Layout.MetadataDir + "/" + submission.MetadataFileName
	doc, err := submission.LoadDocument(metadataPath)
	if err != nil {
		return err
	}
	units := submission.CollectUnits(doc)

	results, err := w.DecryptFiles(ctx, units, recipientPriv, force)
	if err != nil {
		return err
	}
	if failed := worker.Failures(results); len(failed) > 0 {
		return fmt.Errorf("grz: %d file(s) failed to decrypt", len(failed))
	}
	log.Info("decrypt: ok")
	return nil
}

func runList(ctx context.Context, log *logrus.Entry, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	listings, err := submission.List(ctx, client)
	if err != nil {
		return err
	}
	for _, l := range listings {
		fmt.Printf("%s\t%s\n", l.SubmissionID, l.State)
	}
	return nil
}

func runClean(ctx context.Context, log *logrus.Entry, configFile, submissionID string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	if err := submission.Clean(ctx, client, submissionID); err != nil {
		return err
	}
	log.Infof("clean: submission %s removed", submissionID)
	return nil
}
