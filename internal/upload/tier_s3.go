package upload

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/mediaup/internal/models"
)

// S3Options configure the direct tier: a fixed, pre-authorized
// S3-compatible endpoint that requires no additional user interaction.
type S3Options struct {
	BaseEndpoint  string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Transport is the secondary tier. When the managed endpoint keeps
// failing, bytes go straight into the bucket and the public URL is derived
// locally from PublicBaseURL and the object key.
type S3Transport struct {
	client *s3.Client
	opts   S3Options
}

// NewS3Transport builds an S3 client with static credentials against the
// configured base endpoint.
func NewS3Transport(ctx context.Context, opts S3Options) (*S3Transport, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Transport{client: client, opts: opts}, nil
}

func (t *S3Transport) Name() string { return "direct" }

// storageKey shapes object keys as media/<year>/<month>/<day>/<uuid>.
func storageKey() string {
	d := time.Now()
	return fmt.Sprintf("media/%d/%02d/%02d/%v", d.Year(), int(d.Month()), d.Day(), uuid.New())
}

func (t *S3Transport) Upload(ctx context.Context, src models.SourceFile, body []byte) (*Result, error) {
	key := storageKey()

	contentType := src.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	url := strings.TrimRight(t.opts.PublicBaseURL, "/") + "/" + key
	return &Result{RemoteID: key, RemoteURL: url}, nil
}
