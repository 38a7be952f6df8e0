package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"drivesync/internal/model"
	"drivesync/internal/sync"
)

// S3Remote is an S3-backed implementation of the RemoteStore interface.
// Remote IDs are object key prefixes: a folder's ID is its key prefix
// ending in "/", a file's ID is its full object key. Folders are
// materialized as zero-byte marker objects so empty folders survive.
type S3Remote struct {
	name       string
	bucket     string
	prefix     string
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// S3Options carries the connection settings for an S3 remote.
// Empty credential fields fall back to the default AWS credential chain;
// Endpoint supports S3-compatible stores.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Remote creates an S3 remote from the given options.
func NewS3Remote(ctx context.Context, name string, opts S3Options) (*S3Remote, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3RemoteWithClient(name, opts.Bucket, opts.Prefix, client), nil
}

// NewS3RemoteWithClient wraps an existing S3 client. Used by tests and
// callers that need custom endpoints or credentials.
func NewS3RemoteWithClient(name, bucket, prefix string, client *s3.Client) *S3Remote {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Remote{
		name:       name,
		bucket:     bucket,
		prefix:     prefix,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
	}
}

// RootFolderID returns the remote ID of the configured root prefix.
func (v *S3Remote) RootFolderID() string {
	return v.prefix
}

// ListFolder returns the immediate children of a folder prefix. Common
// prefixes become folders, objects become files; the folder's own marker
// object is skipped.
func (v *S3Remote) ListFolder(ctx context.Context, folderID string) ([]sync.RemoteEntry, error) {
	folderKey := v.folderKey(folderID)

	var entries []sync.RemoteEntry
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(v.bucket),
		Prefix:    aws.String(folderKey),
		Delimiter: aws.String("/"),
	}

	paginator := s3.NewListObjectsV2Paginator(v.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3 folder %s: %w", folderID, err)
		}

		for _, cp := range page.CommonPrefixes {
			key := aws.ToString(cp.Prefix)
			entries = append(entries, sync.RemoteEntry{
				ID:       key,
				Name:     path.Base(strings.TrimSuffix(key, "/")),
				Type:     model.EntryFolder,
				ParentID: folderKey,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == folderKey {
				// The folder's own marker object.
				continue
			}
			entries = append(entries, sync.RemoteEntry{
				ID:       key,
				Name:     path.Base(key),
				Type:     model.EntryFile,
				ParentID: folderKey,
				Size:     aws.ToInt64(obj.Size),
			})
		}
	}
	return entries, nil
}

// CreateFolder creates a child folder marker, returning the existing ID
// when the marker is already present.
func (v *S3Remote) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	key := v.folderKey(parentID) + name + "/"

	_, err := v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create s3 folder %s: %w", key, err)
	}
	return key, nil
}

// UploadFile stores the file at localPath under the given parent folder.
func (v *S3Remote) UploadFile(ctx context.Context, localPath, parentID string) (*sync.UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	key := v.folderKey(parentID) + filepath.Base(localPath)
	out, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return &sync.UploadResult{
		DataID:     strings.Trim(aws.ToString(out.ETag), `"`),
		MetadataID: key,
		FileID:     key,
	}, nil
}

// DownloadFile fetches an object's bytes and writes them to destPath.
func (v *S3Remote) DownloadFile(ctx context.Context, fileID, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	_, err = v.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", fileID, err)
	}
	return nil
}

// folderKey normalizes a folder ID into a key prefix ending in "/".
// An empty ID means the configured root prefix.
func (v *S3Remote) folderKey(folderID string) string {
	if folderID == "" {
		return v.prefix
	}
	if !strings.HasSuffix(folderID, "/") {
		return folderID + "/"
	}
	return folderID
}

// Compile-time check that S3Remote implements the RemoteStore interface
var _ sync.RemoteStore = (*S3Remote)(nil)
