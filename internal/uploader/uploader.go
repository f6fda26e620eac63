// Package uploader ships rotated transition logs to S3.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/cenkalti/backoff/v5"
)

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures an Uploader.
type Options struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string // for S3-compatible services
	RoleARN         string // OIDC web identity; takes precedence over static keys
	AccessKeyID     string
	SecretAccessKey string
	DeleteAfter     bool
	MaxRetries      int
}

// Uploader handles uploading completed log files to S3
type Uploader struct {
	client       ObjectPutter
	bucket       string
	prefix       string
	deleteAfter  bool
	maxRetries   int
	initialDelay time.Duration
}

// flyTokenRetriever implements stscreds.IdentityTokenRetriever for Fly.io OIDC
type flyTokenRetriever struct {
	socketPath string
	audience   string
}

// GetIdentityToken fetches an OIDC token from Fly.io's Unix socket API
func (f *flyTokenRetriever) GetIdentityToken() ([]byte, error) {
	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", f.socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	reqBody, err := json.Marshal(map[string]string{"aud": f.audience})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := client.Post("http://localhost/v1/tokens/oidc", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	token, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

// New creates an S3 uploader. With a RoleARN it assumes the role using the
// Fly.io OIDC token; otherwise it uses the static keys, or the default AWS
// credential chain when those are empty too.
func New(ctx context.Context, opts Options) (*Uploader, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.RoleARN == "" && opts.AccessKeyID != "" {
		slog.Warn("uploader: using static AWS credentials (deprecated), migrate to OIDC")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	if opts.RoleARN != "" {
		slog.Info("uploader: using OIDC authentication", slog.String("role", opts.RoleARN))
		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(cfg),
			opts.RoleARN,
			&flyTokenRetriever{socketPath: "/.fly/api", audience: "sts.amazonaws.com"},
		)
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, opts), nil
}

// NewWithClient creates an uploader around an existing client.
func NewWithClient(client ObjectPutter, opts Options) *Uploader {
	return &Uploader{
		client:       client,
		bucket:       opts.Bucket,
		prefix:       strings.Trim(opts.Prefix, "/"),
		deleteAfter:  opts.DeleteAfter,
		maxRetries:   max(0, opts.MaxRetries),
		initialDelay: time.Second,
	}
}

// ScanAndUploadExisting uploads .jsonl files left over from a previous run.
func (u *Uploader) ScanAndUploadExisting(ctx context.Context, outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jsonl") {
			files = append(files, filepath.Join(outputDir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil
	}

	slog.Info("uploader: found leftover files", slog.Int("count", len(files)), slog.String("dir", outputDir))
	for _, f := range files {
		go u.Upload(ctx, f)
	}
	return nil
}

// Start uploads every path received on fileChan until ctx is cancelled.
func (u *Uploader) Start(ctx context.Context, fileChan <-chan string) error {
	for {
		select {
		case localPath := <-fileChan:
			go u.Upload(ctx, localPath)

		case <-ctx.Done():
			slog.Info("uploader: shutting down")
			return ctx.Err()
		}
	}
}

// Upload uploads one file with retries and removes it afterwards when
// configured to. It reports whether the upload succeeded.
func (u *Uploader) Upload(ctx context.Context, localPath string) bool {
	filename := filepath.Base(localPath)
	key, err := u.ObjectKey(filename)
	if err != nil {
		slog.Warn("uploader: skipping file", slog.String("file", filename), slog.Any("error", err))
		return false
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = u.initialDelay
	bo.Multiplier = 2

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, u.uploadFile(ctx, localPath, key)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(u.maxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("uploader: attempt failed",
				slog.String("file", filename),
				slog.Duration("retry_in", wait),
				slog.Any("error", err),
			)
		}),
	)
	if err != nil {
		slog.Error("uploader: giving up", slog.String("file", filename), slog.Int("attempts", u.maxRetries+1), slog.Any("error", err))
		return false
	}

	slog.Info("uploader: uploaded", slog.String("file", filename), slog.String("key", key), slog.String("bucket", u.bucket))
	if u.deleteAfter {
		if err := os.Remove(localPath); err != nil {
			slog.Warn("uploader: delete failed", slog.String("file", localPath), slog.Any("error", err))
		}
	}
	return true
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("open file: %w", err))
	}
	defer file.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// ObjectKey maps a recorder filename to its S3 key.
// Input: twitch_some_user_20251230_1030.jsonl
// Output: [prefix/]2025/12/30/twitch/some_user/twitch_some_user_20251230_1030.jsonl
func (u *Uploader) ObjectKey(filename string) (string, error) {
	nameWithoutExt := strings.TrimSuffix(filename, ".jsonl")

	// Channel names may contain underscores, so parse from the end
	parts := strings.Split(nameWithoutExt, "_")
	if len(parts) < 4 {
		return "", fmt.Errorf("invalid filename format: %s", filename)
	}

	platform := parts[0]
	channel := strings.Join(parts[1:len(parts)-2], "_")
	t, err := time.Parse("20060102_1504", parts[len(parts)-2]+"_"+parts[len(parts)-1])
	if err != nil {
		return "", fmt.Errorf("parse timestamp: %w", err)
	}

	key := fmt.Sprintf("%04d/%02d/%02d/%s/%s/%s",
		t.Year(), t.Month(), t.Day(), platform, channel, filename)
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	return key, nil
}
