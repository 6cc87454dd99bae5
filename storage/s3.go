//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LakePipe.
//
// LakePipe is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LakePipe is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LakePipe. If not, see https://www.gnu.org/licenses/.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchSize is the DeleteObjects request limit.
const deleteBatchSize = 1000

// S3StoreOptions configures the S3 store.
type S3StoreOptions struct {
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	PartSize       int64           // Multipart upload/download part size
	Concurrency    int             // Parts transferred in parallel per object
}

// S3Option represents a configuration function for S3Store.
type S3Option func(*S3StoreOptions)

func WithS3Region(region string) S3Option {
	return func(opts *S3StoreOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) S3Option {
	return func(opts *S3StoreOptions) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) S3Option {
	return func(opts *S3StoreOptions) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) S3Option {
	return func(opts *S3StoreOptions) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) S3Option {
	return func(opts *S3StoreOptions) {
		opts.ForcePathStyle = pathStyle
	}
}

func WithS3PartSize(size int64) S3Option {
	return func(opts *S3StoreOptions) {
		opts.PartSize = size
	}
}

// S3Store implements Store on Amazon S3.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	opts       S3StoreOptions
}

// NewS3Store loads the default AWS configuration, applies options and creates the store.
func NewS3Store(ctx context.Context, options ...S3Option) (*S3Store, error) {
	opts := S3StoreOptions{
		PartSize:    manager.DefaultUploadPartSize,
		Concurrency: manager.DefaultUploadConcurrency,
	}
	for _, option := range options {
		option(&opts)
	}

	cfg, err := LoadAWSConfig(ctx, opts.Region, opts.Profile, opts.Credentials)
	if err != nil {
		return nil, &StoreError{Op: "create_aws_config", Err: err}
	}
	return newS3Store(cfg, opts), nil
}

// NewS3StoreFromConfig creates a store from an existing AWS configuration.
func NewS3StoreFromConfig(cfg aws.Config, options ...S3Option) *S3Store {
	opts := S3StoreOptions{
		PartSize:    manager.DefaultUploadPartSize,
		Concurrency: manager.DefaultUploadConcurrency,
	}
	for _, option := range options {
		option(&opts)
	}
	return newS3Store(cfg, opts)
}

func newS3Store(cfg aws.Config, opts S3StoreOptions) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})
	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = opts.PartSize
			u.Concurrency = opts.Concurrency
		}),
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.PartSize = opts.PartSize
			d.Concurrency = opts.Concurrency
		}),
		opts: opts,
	}
}

// LoadAWSConfig creates AWS configuration from the default chain, overriding region, profile
// and credentials when given.
func LoadAWSConfig(ctx context.Context, region, profile string, creds aws.Credentials) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if region != "" {
		configOpts = append(configOpts, config.WithRegion(region))
	}
	if profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if creds.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				creds.AccessKeyID,
				creds.SecretAccessKey,
				creds.SessionToken,
			),
		)
	}
	return cfg, nil
}

func s3Location(op, uri string) (Location, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return Location{}, &StoreError{Op: op, URI: uri, Err: err}
	}
	if loc.Scheme != "s3" {
		return Location{}, &StoreError{Op: op, URI: uri, Err: fmt.Errorf("not an s3 uri")}
	}
	return loc, nil
}

// Open implements Store.
func (s *S3Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := s3Location("open", uri)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, &StoreError{Op: "open", URI: uri, Err: translateS3Error(err)}
	}
	return out.Body, nil
}

// Download implements Downloader with parallel ranged GETs.
func (s *S3Store) Download(ctx context.Context, uri string) ([]byte, error) {
	loc, err := s3Location("open", uri)
	if err != nil {
		return nil, err
	}
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}); err != nil {
		return nil, &StoreError{Op: "open", URI: uri, Err: translateS3Error(err)}
	}
	return buf.Bytes(), nil
}

// Put implements Store. S3 makes a new object visible only once the upload completes.
func (s *S3Store) Put(ctx context.Context, uri string, body io.Reader) error {
	loc, err := s3Location("put", uri)
	if err != nil {
		return err
	}
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   body,
	}); err != nil {
		return &StoreError{Op: "put", URI: uri, Err: err}
	}
	return nil
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	loc, err := s3Location("list", prefix)
	if err != nil {
		return nil, err
	}
	input := &s3.ListObjectsV2Input{Bucket: aws.String(loc.Bucket)}
	if loc.Key != "" {
		input.Prefix = aws.String(loc.Key)
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &StoreError{Op: "list", URI: prefix, Err: err}
		}
		for _, obj := range page.Contents {
			o := Object{URI: "s3://" + loc.Bucket + "/" + aws.ToString(obj.Key)}
			if obj.Size != nil {
				o.Size = *obj.Size
			}
			if obj.LastModified != nil {
				o.LastModified = *obj.LastModified
			}
			objects = append(objects, o)
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].URI < objects[j].URI })
	return objects, nil
}

// Delete implements Store, batching keys per bucket.
func (s *S3Store) Delete(ctx context.Context, uris []string) error {
	byBucket := make(map[string][]string)
	var buckets []string
	for _, uri := range uris {
		loc, err := s3Location("delete", uri)
		if err != nil {
			return err
		}
		if _, ok := byBucket[loc.Bucket]; !ok {
			buckets = append(buckets, loc.Bucket)
		}
		byBucket[loc.Bucket] = append(byBucket[loc.Bucket], loc.Key)
	}

	for _, bucket := range buckets {
		keys := byBucket[bucket]
		for start := 0; start < len(keys); start += deleteBatchSize {
			end := start + deleteBatchSize
			if end > len(keys) {
				end = len(keys)
			}
			ids := make([]types.ObjectIdentifier, 0, end-start)
			for _, k := range keys[start:end] {
				ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
			}
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return &StoreError{Op: "delete", URI: "s3://" + bucket, Err: err}
			}
			if len(out.Errors) > 0 {
				first := out.Errors[0]
				return &StoreError{
					Op:  "delete",
					URI: "s3://" + bucket + "/" + aws.ToString(first.Key),
					Err: fmt.Errorf("%d objects not deleted: %s", len(out.Errors), aws.ToString(first.Message)),
				}
			}
		}
	}
	return nil
}

func translateS3Error(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
