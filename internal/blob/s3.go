package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectCacheControl is sent with every upload. Object paths carry a timestamp, so
// an object never changes once written.
const objectCacheControl = "public, max-age=31536000, immutable"

// S3Config configures an S3Store.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint points the client at an S3-compatible service and switches to path-style addressing.
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are served from. Defaults to the bucket's virtual-hosted URL.
	PublicURL string
	// Prefix is prepended to every object key.
	Prefix string
}

// putObjectAPI is the part of *s3.Client the store uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps blobs in an S3 bucket.
type S3Store struct {
	client    putObjectAPI
	bucket    string
	prefix    string
	publicURL string
}

// NewS3Store creates an S3Store. Static credentials are used when an access key is
// configured; otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket cannot be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client putObjectAPI, cfg S3Config) *S3Store {
	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		switch {
		case cfg.Endpoint != "":
			publicURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		publicURL: publicURL,
	}
}

// Upload validates that data is a supported image and puts it at objectPath under the prefix.
func (s *S3Store) Upload(ctx context.Context, objectPath string, data []byte) (*Object, error) {
	clean, contentType, err := prepareUpload(ctx, objectPath, data)
	if err != nil {
		return nil, err
	}

	key := clean
	if s.prefix != "" {
		key = path.Join(s.prefix, clean)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(objectCacheControl),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	return newObject(s.publicURL+"/"+key, clean, contentType, data), nil
}
