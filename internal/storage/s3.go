package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UsePathStyle    bool
}

// S3Client mirrors session PDFs between an S3-compatible bucket and a local directory.
type S3Client struct {
	client *s3.Client
	bucket string
	prefix string
}

// ObjectInfo describes a PDF object in the bucket.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Name is the object's base name, used as the local file name.
func (o ObjectInfo) Name() string {
	return path.Base(o.Key)
}

// PullResult reports what a pull copied.
type PullResult struct {
	Downloaded []string
	Unchanged  int
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ListPDFs returns the *.pdf objects under the configured prefix, sorted by key.
func (c *S3Client) ListPDFs(ctx context.Context) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	}
	if c.prefix != "" {
		input.Prefix = aws.String(c.prefix)
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.EqualFold(path.Ext(key), ".pdf") {
				continue
			}
			objects = append(objects, ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Download writes the object to {dir}/{base name} and returns the local path.
func (c *S3Client) Download(ctx context.Context, obj ObjectInfo, dir string) (string, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", obj.Key, err)
	}
	defer output.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	dest := filepath.Join(dir, obj.Name())
	tmp, err := os.CreateTemp(dir, obj.Name()+".*.part")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, output.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to download %s: %w", obj.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	if !obj.LastModified.IsZero() {
		_ = os.Chtimes(dest, obj.LastModified, obj.LastModified)
	}
	return dest, nil
}

// PullPDFs downloads every PDF that is missing locally or differs in size or
// modification time.
func (c *S3Client) PullPDFs(ctx context.Context, dir string) (*PullResult, error) {
	objects, err := c.ListPDFs(ctx)
	if err != nil {
		return nil, err
	}

	result := &PullResult{}
	for _, obj := range objects {
		if upToDate(filepath.Join(dir, obj.Name()), obj) {
			result.Unchanged++
			continue
		}
		dest, err := c.Download(ctx, obj, dir)
		if err != nil {
			return result, err
		}
		result.Downloaded = append(result.Downloaded, dest)
	}

	log.Printf("storage: pulled %d PDFs from s3://%s/%s (%d unchanged)", len(result.Downloaded), c.bucket, c.prefix, result.Unchanged)
	return result, nil
}

func upToDate(local string, obj ObjectInfo) bool {
	info, err := os.Stat(local)
	if err != nil {
		return false
	}
	if info.Size() != obj.Size {
		return false
	}
	return obj.LastModified.IsZero() || !info.ModTime().Before(obj.LastModified)
}

// Upload puts a local PDF into the bucket under the configured prefix.
func (c *S3Client) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := path.Join(c.prefix, filepath.Base(localPath))
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return key, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		var owned interface{ ErrorCode() string }
		if errors.As(err, &owned) && owned.ErrorCode() == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
