package backup

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// UploadArchive uploads the archive at path to uploadURL (an
// "s3://bucket/key" URL). If accessKeyID/secretAccessKey are both set, they
// override the default AWS credential chain (environment, shared config
// file, instance role) with a static pair — useful when the backup host has
// no ambient AWS configuration of its own. Called only after the archive
// has been closed and verified, per SPEC_FULL.md's "supplemented features"
// section — an optional post-archive hook never part of the core pipeline
// itself.
func UploadArchive(ctx context.Context, path, uploadURL, accessKeyID, secretAccessKey string, log zerolog.Logger) error {
	u, err := url.Parse(uploadURL)
	if err != nil || u.Scheme != "s3" {
		return InputError(err, "upload URL %q is not a valid s3:// URL", uploadURL)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return InputError(nil, "upload URL %q is missing a bucket or key", uploadURL)
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return IOFailure(err, "loading AWS credentials")
	}

	f, err := os.Open(path)
	if err != nil {
		return IOFailure(err, "opening archive %q for upload", path)
	}
	defer f.Close()

	client := s3.NewFromConfig(cfg)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return IOFailure(err, "uploading %q to %q", path, uploadURL)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Msg("archive uploaded")
	return nil
}
