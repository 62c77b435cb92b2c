package aws_s3

import (
	"context"
	"fmt"
	log "log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
)

// maxDeleteObjects is the most keys one DeleteObjects call takes.
const maxDeleteObjects = 1000

type manageBucket struct {
	s3Client s3API
	region   string
}

func (mb *manageBucket) createBucket(ctx context.Context, bucketName string) error {
	in := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}
	// us-east-1 rejects an explicit location constraint.
	if mb.region != "" && mb.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(mb.region),
		}
	}
	if _, err := mb.s3Client.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("couldn't create bucket %s in Region %s, details: %w", bucketName, mb.region, err)
	}
	return nil
}

func (mb *manageBucket) headBucket(ctx context.Context, bucketName string) error {
	_, err := mb.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})
	return translateError(err, azerrors.ContainerNotFound)
}

// removeBucket deletes every object of the bucket, then the bucket.
func (mb *manageBucket) removeBucket(ctx context.Context, bucketName string) error {
	p := s3.NewListObjectsV2Paginator(mb.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		if err := mb.deleteObjects(ctx, bucketName, page.Contents); err != nil {
			return err
		}
	}
	_, err := mb.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return fmt.Errorf("couldn't remove bucket %s, details: %w", bucketName, err)
	}
	return nil
}

func (mb *manageBucket) deleteObjects(ctx context.Context, bucketName string, objects []types.Object) error {
	for len(objects) > 0 {
		n := min(len(objects), maxDeleteObjects)
		ids := make([]types.ObjectIdentifier, n)
		for i := range ids {
			ids[i] = types.ObjectIdentifier{Key: objects[i].Key}
		}
		output, err := mb.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucketName),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(output.Errors) > 0 {
			e := output.Errors[0]
			log.Warn(fmt.Sprintf("bucket %s, %d objects could not be deleted", bucketName, len(output.Errors)))
			return fmt.Errorf("couldn't delete object %s of bucket %s, details: %s", aws.ToString(e.Key), bucketName, aws.ToString(e.Message))
		}
		objects = objects[n:]
	}
	return nil
}

func (mb *manageBucket) listBuckets(ctx context.Context) ([]string, error) {
	output, err := mb.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	r := make([]string, 0, len(output.Buckets))
	for _, b := range output.Buckets {
		r = append(r, aws.ToString(b.Name))
	}
	return r, nil
}
