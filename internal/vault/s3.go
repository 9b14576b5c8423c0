package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Vault stores snapshots in an S3 bucket under an optional key prefix:
//
//	<prefix>/snapshots/<nodeID>.db
//	<prefix>/snapshots/<nodeID>.version
//
// Credentials come from the default AWS credential chain.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Vault creates an S3 vault against the given bucket and region.
func NewS3Vault(ctx context.Context, name, bucket, prefix, region string) (*S3Vault, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 vault requires a bucket")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (v *S3Vault) snapshotKey(nodeID string) string {
	return path.Join(v.prefix, "snapshots", nodeID+".db")
}

func (v *S3Vault) versionKey(nodeID string) string {
	return path.Join(v.prefix, "snapshots", nodeID+".version")
}

// PutSnapshot uploads the snapshot for a node along with a version marker.
func (v *S3Vault) PutSnapshot(nodeID string, r io.Reader, size int64, version int64) error {
	ctx := context.Background()

	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.snapshotKey(nodeID)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading snapshot: %w", err)
	}

	versionData := strconv.FormatInt(version, 10)
	_, err = v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.versionKey(nodeID)),
		Body:   strings.NewReader(versionData),
	})
	if err != nil {
		return fmt.Errorf("uploading version marker: %w", err)
	}
	return nil
}

// GetSnapshot downloads the snapshot for a node and writes it to w.
func (v *S3Vault) GetSnapshot(nodeID string, w io.Writer) error {
	ctx := context.Background()

	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.snapshotKey(nodeID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("snapshot not found for node: %s", nodeID)
		}
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading snapshot body: %w", err)
	}
	return nil
}

// GetSnapshotVersion returns the snapshot version for a node.
// Returns 0 if no version marker exists.
func (v *S3Vault) GetSnapshotVersion(nodeID string) (int64, error) {
	ctx := context.Background()

	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.versionKey(nodeID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return 0, nil
		}
		return 0, fmt.Errorf("downloading version marker: %w", err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, out.Body); err != nil {
		return 0, fmt.Errorf("reading version marker: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(buf.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the bucket is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

// Compile-time check that S3Vault implements the Vault interface
var _ Vault = (*S3Vault)(nil)
