package storage

import (
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	datastore "github.com/ipfs/go-datastore"
	s3ds "github.com/ipfs/go-ds-s3"
	"github.com/pkg/errors"
)

func NewS3(c *Config) (datastore.Batching, error) {
	s3conf := s3ds.Config{
		RegionEndpoint: c.RegionEndpoint,
		Bucket:         c.Bucket,
		Region:         c.Region,
		AccessKey:      c.AccessKey,
		SecretKey:      c.SecretKey,
		RootDirectory:  c.RootDirectory,
	}

	ds, err := s3ds.NewS3Datastore(s3conf)
	if err != nil {
		return nil, errors.Wrap(err, "error creating datastore")
	}
	if c.LocalS3 {
		logger.Debugf("creating bucket %s", c.Bucket)
		if err := devMakeBucket(ds.S3, c.Bucket); err != nil {
			return nil, errors.Wrap(err, "error creating bucket")
		}
	}
	return ds, nil
}

func devMakeBucket(s3obj *s3.S3, bucketName string) error {
	_, err := s3obj.CreateBucket(&s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	})
	// since this is local, we need to wait a sec before using it
	time.Sleep(1 * time.Second)

	return err
}
