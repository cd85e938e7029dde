package objects

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubSeams(t *testing.T) {
	t.Helper()
	origLoad, origNew, origDel := loadDefaultAWSConfig, newS3ClientFromConfig, deleteObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig, deleteObject = origLoad, origNew, origDel
	})
}

func TestNewS3Store_AppliesOptions(t *testing.T) {
	stubSeams(t)

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-north-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	st, err := NewS3Store(context.Background(), Options{
		Region: "eu-north-1", AccessKey: "a", SecretKey: "b", BaseEndpoint: "http://minio:9000", Bucket: "vault",
	})
	require.NoError(t, err)
	assert.Equal(t, "vault", st.bucket)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://minio:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_ConfigError(t *testing.T) {
	stubSeams(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}

	_, err := NewS3Store(context.Background(), Options{})
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	stubSeams(t)

	var got *s3.DeleteObjectInput
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		got = in
		return nil
	}

	st := &S3Store{client: &s3.Client{}, bucket: "vault"}
	require.NoError(t, st.Delete(context.Background(), "users/2026/1/1/abc"))
	assert.Equal(t, "vault", aws.ToString(got.Bucket))
	assert.Equal(t, "users/2026/1/1/abc", aws.ToString(got.Key))
}

func TestDelete_MissingObjectIsFine(t *testing.T) {
	stubSeams(t)
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		return &smithy.GenericAPIError{Code: "NoSuchKey"}
	}

	st := &S3Store{client: &s3.Client{}, bucket: "vault"}
	assert.NoError(t, st.Delete(context.Background(), "k"))
}

func TestDelete_Error(t *testing.T) {
	stubSeams(t)
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		return errors.New("503")
	}

	st := &S3Store{client: &s3.Client{}, bucket: "vault"}
	err := st.Delete(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 delete k")
}
