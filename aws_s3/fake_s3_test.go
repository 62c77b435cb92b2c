package aws_s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type fakeObject struct {
	data         []byte
	etag         string
	lastModified time.Time
}

// fakeS3 is an in-memory S3 covering the calls BlobRepository & the transfer manager make.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]map[string]fakeObject
	uploads map[string]map[int32][]byte
	nextID  int

	putCalls       int
	multipartCalls int
	rangedGets     int
	headBucketErr  error
	// putReplyErr is returned by PutObject after the object was stored.
	putReplyErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		buckets: make(map[string]map[string]fakeObject),
		uploads: make(map[string]map[int32][]byte),
	}
}

func etagOf(data []byte) string {
	return fmt.Sprintf("\"%x\"", md5.Sum(data))
}

func (f *fakeS3) bucket(name *string) (map[string]fakeObject, error) {
	b, ok := f.buckets[aws.ToString(name)]
	if !ok {
		return nil, &types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return b, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{Message: aws.String("Your previous request to create the named bucket succeeded and you already own it.")}
	}
	f.buckets[aws.ToString(in.Bucket)] = make(map[string]fakeObject)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headBucketErr != nil {
		return nil, f.headBucketErr
	}
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	if len(b) > 0 {
		return nil, &smithy.GenericAPIError{Code: "BucketNotEmpty", Message: "The bucket you tried to delete is not empty"}
	}
	delete(f.buckets, aws.ToString(in.Bucket))
	return &s3.DeleteBucketOutput{}, nil
}

func (f *fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListBucketsOutput{}
	for name := range f.buckets {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	sort.Slice(out.Buckets, func(i, j int) bool {
		return aws.ToString(out.Buckets[i].Name) < aws.ToString(out.Buckets[j].Name)
	})
	return out, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	if _, ok := b[aws.ToString(in.Key)]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	o := fakeObject{data: data, etag: etagOf(data), lastModified: time.Now().UTC()}
	b[aws.ToString(in.Key)] = o
	if f.putReplyErr != nil {
		return nil, f.putReplyErr
	}
	return &s3.PutObjectOutput{ETag: aws.String(o.etag)}, nil
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.bucket(in.Bucket); err != nil {
		return nil, err
	}
	f.multipartCalls++
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.uploads[id] = make(map[int32][]byte)
	return &s3.CreateMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	parts[aws.ToInt32(in.PartNumber)] = data
	return &s3.UploadPartOutput{ETag: aws.String(etagOf(data))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	if _, ok := b[aws.ToString(in.Key)]; ok && aws.ToString(in.IfNoneMatch) == "*" {
		delete(f.uploads, aws.ToString(in.UploadId))
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	var buf bytes.Buffer
	for _, p := range in.MultipartUpload.Parts {
		buf.Write(parts[aws.ToInt32(p.PartNumber)])
	}
	delete(f.uploads, aws.ToString(in.UploadId))
	o := fakeObject{data: buf.Bytes(), etag: etagOf(buf.Bytes()), lastModified: time.Now().UTC()}
	b[aws.ToString(in.Key)] = o
	return &s3.CompleteMultipartUploadOutput{ETag: aws.String(o.etag), Key: in.Key, Bucket: in.Bucket}, nil
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, aws.ToString(in.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) object(bucket, key *string) (fakeObject, error) {
	b, err := f.bucket(bucket)
	if err != nil {
		return fakeObject{}, err
	}
	o, ok := b[aws.ToString(key)]
	if !ok {
		return fakeObject{}, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return o, nil
}

// GetObject honors single "bytes=first-last" ranges, which is what the downloader sends.
func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, err := f.object(in.Bucket, in.Key)
	if err != nil {
		return nil, err
	}
	total := int64(len(o.data))
	out := &s3.GetObjectOutput{ETag: aws.String(o.etag), LastModified: aws.Time(o.lastModified)}
	rng := aws.ToString(in.Range)
	if rng == "" {
		out.Body = io.NopCloser(bytes.NewReader(o.data))
		out.ContentLength = aws.Int64(total)
		return out, nil
	}
	f.rangedGets++
	var first, last int64
	if _, err := fmt.Sscanf(strings.TrimPrefix(rng, "bytes="), "%d-%d", &first, &last); err != nil {
		return nil, err
	}
	if first >= total {
		return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: "The requested range is not satisfiable"}
	}
	last = min(last, total-1)
	out.Body = io.NopCloser(bytes.NewReader(o.data[first : last+1]))
	out.ContentLength = aws.Int64(last - first + 1)
	out.ContentRange = aws.String(fmt.Sprintf("bytes %d-%d/%d", first, last, total))
	return out, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, err := f.object(in.Bucket, in.Key)
	if err != nil {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.data))),
		ETag:          aws.String(o.etag),
		ContentType:   aws.String("application/octet-stream"),
		LastModified:  aws.Time(o.lastModified),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	delete(b, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	for _, id := range in.Delete.Objects {
		delete(b, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// ListObjectsV2 pages by MaxKeys, 2 when unset so tests cover paging.
func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := f.bucket(in.Bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	for k := range b {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	pageSize := int(aws.ToInt32(in.MaxKeys))
	if pageSize <= 0 {
		pageSize = 2
	}
	out := &s3.ListObjectsV2Output{}
	if len(keys) > pageSize {
		keys = keys[:pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		o := b[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(o.data))),
			ETag:         aws.String(o.etag),
			LastModified: aws.Time(o.lastModified),
		})
	}
	out.KeyCount = aws.Int32(int32(len(out.Contents)))
	return out, nil
}
