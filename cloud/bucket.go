/*
Copyright © 2019 the SEBAL authors.
This file is part of SEBAL.

SEBAL is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SEBAL is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SEBAL.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cloud moves SEBAL input and output files between the local
// filesystem and blob storage.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// Location is the address of a blob in the format 'provider://bucket/key'.
type Location struct {
	Provider string
	Bucket   string
	Key      string
}

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// ParseLocation parses a blob address. For the "file" provider, an empty
// bucket name (e.g., 'file:///tmp/x.nc') refers to the filesystem root.
func ParseLocation(path string) (Location, error) {
	u, err := url.Parse(path)
	if err != nil {
		return Location{}, fmt.Errorf("cloud: parsing blob location: %v", err)
	}
	l := Location{Provider: u.Scheme, Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}
	switch l.Provider {
	case "file":
		if l.Bucket == "" {
			l.Bucket = string(os.PathSeparator)
		}
	case "gs", "s3":
		if l.Bucket == "" {
			return Location{}, fmt.Errorf("cloud: missing bucket name in '%s'", path)
		}
	default:
		return Location{}, fmt.Errorf("cloud: invalid provider %s", l.Provider)
	}
	if l.Key == "" {
		return Location{}, fmt.Errorf("cloud: missing key in '%s'", path)
	}
	return l, nil
}

func (l Location) String() string {
	if l.Provider == "file" && l.Bucket == string(os.PathSeparator) {
		return "file:///" + l.Key
	}
	return l.Provider + "://" + l.Bucket + "/" + l.Key
}

// WithExt returns a copy of l with the key's extension replaced by ext.
func (l Location) WithExt(ext string) Location {
	if i := strings.LastIndex(l.Key, "."); i > strings.LastIndex(l.Key, "/") {
		l.Key = l.Key[:i]
	}
	l.Key += ext
	return l
}

// Open opens the bucket that l is in.
func (l Location) Open(ctx context.Context) (*blob.Bucket, error) {
	return OpenBucket(ctx, l.Provider+"://"+l.Bucket)
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	i := strings.Index(bucketName, "://")
	if i < 0 {
		return nil, fmt.Errorf("cloud.OpenBucket: invalid bucket '%s'", bucketName)
	}
	provider, name := bucketName[:i], bucketName[i+3:]
	switch provider {
	case "file":
		if name == "" {
			name = string(os.PathSeparator)
		}
		return fileblob.OpenBucket(name, nil)
	case "gs":
		return gsBucket(ctx, name)
	case "s3":
		return s3Bucket(ctx, name)
	default:
		return nil, fmt.Errorf("cloud.OpenBucket: invalid provider %s", provider)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: creating AWS session: %v", err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}
