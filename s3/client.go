package s3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

var ErrNotFound = errors.New("s3 object not found")

type S3Args struct {
	Region string `arg:"--s3-region,env:AWS_REGION,help:AWS region"`
	// Endpoint overrides the S3 endpoint, e.g. for localstack.
	Endpoint string `arg:"--s3-endpoint,env:S3_ENDPOINT,help:S3 endpoint override"`
}

type Client struct {
	client   *s3.S3
	uploader *s3manager.Uploader
}

func NewClient(args S3Args) Client {
	config := &aws.Config{
		Region:                        aws.String(args.Region),
		CredentialsChainVerboseErrors: aws.Bool(true),
	}
	if args.Endpoint != "" {
		config.Endpoint = aws.String(args.Endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}
	sess := session.Must(session.NewSession(config))
	return Client{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}
}

func (c Client) Upload(ctx context.Context, file io.Reader, key, bucketName string) error {
	input := s3manager.UploadInput{
		Body:   file,
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	}
	if _, err := c.uploader.UploadWithContext(ctx, &input); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucketName, key, err)
	}
	return nil
}

// Download streams the object into w and returns the number of bytes written.
// A missing object or bucket yields ErrNotFound.
func (c Client) Download(ctx context.Context, w io.Writer, key, bucketName string) (int64, error) {
	out, err := c.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("s3://%s/%s: %w", bucketName, key, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to get s3://%s/%s: %w", bucketName, key, err)
	}
	defer out.Body.Close()
	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read s3://%s/%s: %w", bucketName, key, err)
	}
	return n, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
		return true
	}
	return false
}
