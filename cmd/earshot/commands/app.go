package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/earshothq/earshot/cmd/earshot/internal/config"
	"github.com/earshothq/earshot/pkg/diarize"
	"github.com/earshothq/earshot/pkg/kv"
	"github.com/earshothq/earshot/pkg/msgr"
	"github.com/earshothq/earshot/pkg/pipeline"
	"github.com/earshothq/earshot/pkg/session"
	"github.com/earshothq/earshot/pkg/slicer"
	"github.com/earshothq/earshot/pkg/storage"
	"github.com/earshothq/earshot/pkg/voicedb"
)

// app holds everything a command needs, wired from the config file.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  kv.Store
	files  storage.FileStore
	people *voicedb.Store
	model  *diarize.Adapter
	bridge *msgr.Bridge
	sess   *session.Session
}

// openApp builds the application. When dialBridge is false the chat
// bridge is not connected and commands that only read local state work
// without the bridge process running.
func openApp(ctx context.Context, dialBridge bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)

	store, err := kv.NewBadger(kv.BadgerOptions{
		Dir: filepath.Join(cfg.DataDir, "db"),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	files, err := openFiles(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		files:  files,
		people: voicedb.NewStore(store),
	}
	a.model = diarize.NewAdapter(diarize.NewHTTPLoader(cfg.ModelURL, nil))
	a.model.Logger = log

	if dialBridge {
		bridge, err := msgr.DialBridge(ctx, cfg.BridgeURL, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.bridge = bridge
		a.sess = session.New(store, files, bridge, a.people)
		a.sess.TTL = cfg.PendingTTL.Duration()
		a.sess.Logger = log
	}
	return a, nil
}

func (a *app) close() {
	if a.bridge != nil {
		a.bridge.Close()
	}
	if a.model != nil {
		a.model.Close()
	}
	a.store.Close()
}

// pipeline builds the processing pipeline with configured thresholds.
func (a *app) pipeline() *pipeline.Pipeline {
	p := pipeline.New(a.model, a.people, a.sess)
	p.Matcher = voicedb.Matcher{
		AutoThreshold:    a.cfg.AutoThreshold,
		SuggestThreshold: a.cfg.SuggestThreshold,
	}
	p.Slicer = slicer.New(
		slicer.WithVoiceActivity(slicer.NewSpectralVAD()),
		slicer.WithLogger(a.log),
	)
	p.Logger = a.log
	return p
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

// openFiles returns the clip store: S3 when configured, local otherwise.
func openFiles(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	if cfg.S3 == nil {
		files, err := storage.NewLocal(filepath.Join(cfg.DataDir, "clips"))
		if err != nil {
			return nil, fmt.Errorf("open clip directory: %w", err)
		}
		return files, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3.Region))
	}
	if cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.S3.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		})
	}
	client := awss3.NewFromConfig(awsCfg, s3Opts...)
	return storage.NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
}
