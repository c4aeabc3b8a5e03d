/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package publish

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// S3Options configures the S3 archive publish target.
type S3Options struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string // for S3-compatible services (MinIO, Spaces, etc.)
	UsePathStyle    bool
	PartSize        int64
}

// S3 publishes payloads to S3-compatible object storage via multipart upload.
// The SDK's transfer manager handles chunking and transient retries itself.
type S3 struct {
	uploader *manager.Uploader
	bucket   string
	logger   zerolog.Logger
}

// NewS3 creates an S3 publisher.
func NewS3(ctx context.Context, opts S3Options, logger zerolog.Logger) (*S3, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if opts.PartSize > 0 {
			u.PartSize = opts.PartSize
		}
	})

	return &S3{
		uploader: uploader,
		bucket:   opts.Bucket,
		logger:   logger.With().Str("component", "publish").Str("target", "s3").Logger(),
	}, nil
}

// Publish uploads the payload under published/<owner>/<uuid>.mp4 and returns
// the object key as the external identifier.
func (p *S3) Publish(ctx context.Context, req Request) (string, error) {
	file, err := os.Open(req.PayloadPath)
	if err != nil {
		return "", fmt.Errorf("open payload: %w", err)
	}
	defer file.Close()

	key := path.Join("published", req.OwnerID, uuid.New().String()+".mp4")

	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("video/mp4"),
		Metadata: map[string]string{
			"title": req.Title,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadTerminal, err)
	}

	p.logger.Info().Str("bucket", p.bucket).Str("key", key).Msg("payload archived")
	return key, nil
}

var _ Publisher = (*S3)(nil)
