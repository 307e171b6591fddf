// Package objectstore wraps the S3 calls the upload pipeline needs: presigned
// PUT URLs for clients and object metadata after the write.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/bridgeupload/internal/common"
)

// MandatedSSE is the server-side encryption every upload must request.
const MandatedSSE = string(types.ServerSideEncryptionAes256)

var (
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
)

type presignAPI interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type headAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// PresignedPut is a time-boxed write grant for one object key.
type PresignedPut struct {
	URL     string
	Expires time.Time
	// Headers must accompany the PUT exactly as given.
	Headers http.Header
}

// ObjectMetadata is what the pipeline reads back after the client's PUT.
type ObjectMetadata struct {
	ContentLength int64
	ContentType   string
	SSEAlgorithm  string
}

// Gateway issues presigned writes and reads metadata in one bucket.
type Gateway struct {
	presigner presignAPI
	client    headAPI
	bucket    string
	expiry    time.Duration
	now       func() time.Time
}

// NewGateway builds a Gateway on top of an already loaded aws.Config.
func NewGateway(cfg aws.Config, bucket string, expiry time.Duration) *Gateway {
	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &Gateway{
		presigner: newS3PresignClient(client),
		client:    client,
		bucket:    bucket,
		expiry:    expiry,
		now:       time.Now,
	}
}

// PresignPut returns a PUT URL for key that only accepts a body with the
// given MD5 and content type and that requests AES256 encryption.
func (g *Gateway) PresignPut(ctx context.Context, key, contentMD5, contentType string) (*PresignedPut, error) {
	issued := g.now()
	req, err := g.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(g.bucket),
		Key:                  aws.String(key),
		ContentMD5:           aws.String(contentMD5),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}, s3.WithPresignExpires(g.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign put %s: %w", key, err)
	}
	return &PresignedPut{URL: req.URL, Expires: issued.Add(g.expiry), Headers: req.SignedHeader}, nil
}

// HeadObject reads the metadata of key. A missing object yields
// common.ErrorNotFound; any other failure is wrapped in common.ErrorInternal.
func (g *Gateway) HeadObject(ctx context.Context, key string) (*ObjectMetadata, error) {
	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("%w: head object %s: %v", common.ErrorInternal, key, err)
	}
	return &ObjectMetadata{
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentType:   aws.ToString(out.ContentType),
		SSEAlgorithm:  string(out.ServerSideEncryption),
	}, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
