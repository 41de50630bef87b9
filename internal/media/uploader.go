package media

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "github.com/chatterbox-im/chatterbox/internal/config"
)

// objectAPI is the slice of the S3 client the uploader uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes message media and avatars to the backend's S3-compatible
// object store and returns publicly addressable URLs.
type Uploader struct {
	client  objectAPI
	bucket  string
	baseURL string
}

// NewUploader builds an uploader from the media config. A custom Endpoint
// points the client at the backend's storage instead of AWS.
func NewUploader(ctx context.Context, mc appconfig.Media) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(mc.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if mc.Endpoint != "" {
			o.BaseEndpoint = aws.String(mc.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Uploader{client: client, bucket: mc.Bucket, baseURL: strings.TrimRight(mc.PublicBaseURL, "/")}, nil
}

// UploadOptions tune a single upload.
type UploadOptions struct {
	// CacheControl sets the object's cache-control header; empty means a
	// long immutable cache, which fits content-addressed keys.
	CacheControl string
	// Upsert allows overwriting an existing key (avatars reuse a stable
	// per-user key; message media never does).
	Upsert bool
}

// Upload writes data under a generated key in the given folder and returns
// its public URL. The key embeds a UUID, so plain uploads never collide.
func (u *Uploader) Upload(ctx context.Context, folder, filename string, data []byte, opts UploadOptions) (string, error) {
	key := path.Join(folder, time.Now().UTC().Format("20060102")+"-"+uuid.New().String()+strings.ToLower(path.Ext(filename)))
	return u.put(ctx, key, data, opts)
}

// UploadAvatar writes a user's avatar under a stable key, overwriting any
// previous one.
func (u *Uploader) UploadAvatar(ctx context.Context, userID string, data []byte) (string, error) {
	resized, err := ShrinkAvatar(data)
	if err != nil {
		return "", fmt.Errorf("shrink avatar: %w", err)
	}
	opts := UploadOptions{CacheControl: "no-cache", Upsert: true}
	return u.put(ctx, path.Join("avatars", userID+".jpg"), resized, opts)
}

func (u *Uploader) put(ctx context.Context, key string, data []byte, opts UploadOptions) (string, error) {
	cache := opts.CacheControl
	if cache == "" {
		cache = "public, max-age=31536000, immutable"
	}
	in := &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType(key)),
		CacheControl: aws.String(cache),
	}
	if !opts.Upsert {
		in.IfNoneMatch = aws.String("*")
	}
	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return u.PublicURL(key), nil
}

// PublicURL returns the public address for a stored key.
func (u *Uploader) PublicURL(key string) string {
	if u.baseURL != "" {
		return u.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", u.bucket, key)
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
