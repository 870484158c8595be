// Package objstore exposes remote object storage as a Zarr store.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"go.ngs.io/hptrack/internal/adapter/zarr"
)

// Public bucket and region of the HRRR Zarr archive.
const (
	HRRRBucket = "hrrrzarr"
	HRRRRegion = "us-west-1"
)

// S3Store reads keys below Prefix of an S3 bucket.
type S3Store struct {
	Client s3iface.S3API
	Bucket string
	Prefix string
}

// NewAnonymousS3 returns a store for a public bucket, without signing
// requests.
func NewAnonymousS3(bucket, region string) (*S3Store, error) {
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.AnonymousCredentials,
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("s3 session: %w", err)
	}
	return &S3Store{Client: s3.New(s), Bucket: bucket}, nil
}

// WithPrefix returns a copy of s rooted at prefix.
func (s *S3Store) WithPrefix(prefix string) *S3Store {
	c := *s
	c.Prefix = strings.Trim(prefix, "/")
	return &c
}

// Get implements zarr.Store.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	full := key
	if s.Prefix != "" {
		full = s.Prefix + "/" + key
	}
	out, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.Bucket, full, zarr.ErrNotFound)
		}
		return nil, fmt.Errorf("s3://%s/%s: %w", s.Bucket, full, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: read body: %w", s.Bucket, full, err)
	}
	return b, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound", "AccessDenied":
		// Public buckets answer AccessDenied for absent keys when listing
		// is not allowed.
		return true
	}
	return false
}
