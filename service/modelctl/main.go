// Command modelctl publishes model artifacts to the hub bucket functions read
// the shared cache from.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hfserverless/lib/logger"
	"hfserverless/modelstore"
	"hfserverless/pipeline"
	"hfserverless/s3"

	"github.com/alexflint/go-arg"
	"go.uber.org/zap"
)

type args struct {
	logger.LoggerArgs
	s3.S3Args
	Bucket string `arg:"--bucket,env:MODEL_STORE_S3_BUCKET,required"`
	Prefix string `arg:"--prefix,env:MODEL_STORE_S3_PREFIX" default:"models"`
	Model  string `arg:"--model,required,help:model id, e.g. hfserverless/sentiment-lexicon-en"`
	File   string `arg:"positional,required,help:local artifact to upload"`
	// Only linear model artifacts can be checked before upload.
	SkipValidation bool `arg:"--skip-validation"`
}

func main() {
	var flags args
	arg.MustParse(&flags)
	log, err := logger.New(flags.LoggerArgs)
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	defer log.Sync()
	if err := run(context.Background(), flags, s3.NewClient(flags.S3Args), log); err != nil {
		log.Fatal("failed to publish model", zap.Error(err))
	}
}

type uploader interface {
	Upload(ctx context.Context, file io.Reader, key, bucketName string) error
}

func run(ctx context.Context, flags args, up uploader, log *zap.Logger) error {
	key := modelstore.Key{ModelID: flags.Model, File: filepath.Base(flags.File)}
	if err := key.Valid(); err != nil {
		return err
	}
	if !flags.SkipValidation {
		if _, err := pipeline.LoadLinearFile(flags.File); err != nil {
			return fmt.Errorf("artifact is not a valid linear model: %w", err)
		}
	}
	f, err := os.Open(flags.File)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", flags.File, err)
	}
	defer f.Close()
	object := key.ObjectPath(flags.Prefix)
	if err := up.Upload(ctx, f, object, flags.Bucket); err != nil {
		return err
	}
	log.Info("published model artifact", zap.String("bucket", flags.Bucket), zap.String("key", object))
	return nil
}
