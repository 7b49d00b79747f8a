package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/tendant/simple-resources/pkg/resources"
	"github.com/tendant/simple-resources/pkg/resources/objectkey"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	PublicBaseURL   string // Optional delivery base (CDN); derived from bucket/endpoint when empty

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of resources.DurableStore.
// Objects live at <kind>/<version>/<public id>.<format> so a kind-specific
// lookup is a single HeadObject.
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	baseURL       string
	config        Config
}

// New creates a new S3-compatible durable store
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        config.Bucket,
		baseURL:       deliveryBase(config),
		config:        config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// deliveryBase works out where objects are publicly reachable
func deliveryBase(config Config) string {
	if config.PublicBaseURL != "" {
		return strings.TrimRight(config.PublicBaseURL, "/")
	}
	if config.Endpoint != "" {
		endpoint := strings.TrimRight(config.Endpoint, "/")
		if config.UsePathStyle {
			return endpoint + "/" + config.Bucket
		}
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return fmt.Sprintf("%s://%s.%s", u.Scheme, config.Bucket, u.Host)
		}
		return endpoint + "/" + config.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", config.Bucket, config.Region)
}

func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (b *Backend) Name() string { return "s3" }

// Persist uploads content under <kind>/<version>/<public id>.<format>
func (b *Backend) Persist(ctx context.Context, reader io.Reader, params resources.PersistParams) (*resources.Asset, error) {
	ref := resources.ObjectRef{Kind: params.Kind, PublicID: params.PublicID, Format: params.Format}
	key := objectKey(ref)

	contentType := params.MediaType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"kind":      string(params.Kind),
			"public-id": params.PublicID,
			"format":    params.Format,
		},
	}
	b.applySSE(input)

	uploader := manager.NewUploader(b.client)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return nil, b.wrap("persist", key, err)
	}

	return &resources.Asset{
		Kind:        params.Kind,
		PublicID:    params.PublicID,
		Format:      params.Format,
		Version:     objectkey.LayoutVersion,
		URL:         b.baseURL + "/" + key,
		Size:        params.Size,
		ContentType: contentType,
	}, nil
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// Stat issues a HeadObject for one kind-partitioned key
func (b *Backend) Stat(ctx context.Context, ref resources.ObjectRef) (*resources.Asset, error) {
	key := objectKey(ref)
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, resources.ErrNotFound
		}
		return nil, b.wrap("stat", key, err)
	}

	asset := b.assetFromKey(key)
	if result.ContentLength != nil {
		asset.Size = *result.ContentLength
	}
	if result.ContentType != nil {
		asset.ContentType = *result.ContentType
	}
	return asset, nil
}

// List runs a bounded ListObjectsV2 over one kind partition
func (b *Backend) List(ctx context.Context, kind resources.Kind, prefix string, limit int) ([]*resources.Asset, error) {
	keyPrefix := fmt.Sprintf("%s/%s/%s", kind, objectkey.LayoutVersion, prefix)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(keyPrefix),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	result, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, b.wrap("list", keyPrefix, err)
	}

	assets := make([]*resources.Asset, 0, len(result.Contents))
	for _, obj := range result.Contents {
		if obj.Key == nil {
			continue
		}
		asset := b.assetFromKey(*obj.Key)
		if obj.Size != nil {
			asset.Size = *obj.Size
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

// Delete removes an object; S3 reports success for absent keys
func (b *Backend) Delete(ctx context.Context, ref resources.ObjectRef) error {
	key := objectKey(ref)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return b.wrap("delete", key, err)
	}
	return nil
}

// SignedURL returns a presigned GET for inline display
func (b *Backend) SignedURL(ctx context.Context, ref resources.ObjectRef, expiry time.Duration) (string, error) {
	key := objectKey(ref)
	result, err := b.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(b.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String("inline"),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return result.URL, nil
}

// Hosts returns the delivery host
func (b *Backend) Hosts() []string {
	return []string{objectkey.NewLayout("", b.baseURL).Host()}
}

// Ping checks the bucket is reachable with the configured credentials
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	if err != nil {
		return b.wrap("ping", b.bucket, err)
	}
	return nil
}

// Bucket returns the configured bucket name
func (b *Backend) Bucket() string { return b.bucket }

func (b *Backend) assetFromKey(key string) *resources.Asset {
	ref, _ := objectkey.Parse(key)
	return &resources.Asset{
		Kind:     resources.Kind(ref.Kind),
		PublicID: ref.PublicID,
		Format:   ref.Format,
		Version:  ref.Version,
		URL:      b.baseURL + "/" + key,
	}
}

// wrap turns an SDK failure into an UpstreamError carrying the HTTP status
func (b *Backend) wrap(op, key string, err error) error {
	status := http.StatusBadGateway
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() > 0 {
		status = respErr.HTTPStatusCode()
	}
	return &resources.UpstreamError{
		Op:         op,
		StatusCode: status,
		Err:        &resources.StorageError{Backend: b.Name(), Key: key, Op: op, Err: err},
	}
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func objectKey(ref resources.ObjectRef) string {
	return objectkey.Ref{Kind: string(ref.Kind), Version: ref.Version, PublicID: ref.PublicID, Format: ref.Format}.Key()
}
