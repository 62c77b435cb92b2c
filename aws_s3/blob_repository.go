package aws_s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
	"github.com/cesarpv27/Azure.Repositories-sub001/provision"
)

// largeObjectMinSize is the payload size from which uploads & downloads go through the transfer manager
// in parts of this size.
const largeObjectMinSize = 10 * 1024 * 1024

const maxBlobNameLength = 1024

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// BlobOptions configures a BlobRepository.
type BlobOptions struct {
	repositories.RepositoryOptions
	// Concurrency is the number of parts the transfer manager moves in parallel, 0 means its default.
	Concurrency int `json:"concurrency"`
}

// DefaultBlobOptions returns the default repository options.
func DefaultBlobOptions() BlobOptions {
	return BlobOptions{
		RepositoryOptions: repositories.DefaultRepositoryOptions(),
	}
}

// BlobRepository stores blobs in containers backed by S3 buckets.
type BlobRepository struct {
	manageBucket
	options     BlobOptions
	provisioner *provision.Provisioner
	classifier  *azerrors.Classifier
}

// NewBlobRepository returns a BlobRepository over s3Client, see Connect. region is used when creating buckets.
func NewBlobRepository(s3Client *s3.Client, region string, options BlobOptions) (*BlobRepository, error) {
	if s3Client == nil {
		return nil, repositories.NewNilArgumentError("s3Client")
	}
	return newBlobRepository(s3Client, region, options), nil
}

func newBlobRepository(api s3API, region string, options BlobOptions) *BlobRepository {
	return &BlobRepository{
		manageBucket: manageBucket{
			s3Client: api,
			region:   region,
		},
		options:     options,
		provisioner: provision.NewProvisioner(options.CreateResourcePolicy),
		classifier:  azerrors.NewClassifier(azerrors.Blob),
	}
}

// CreateContainer creates a container. An existing one is reported as ContainerAlreadyExists.
func (r *BlobRepository) CreateContainer(ctx context.Context, container string) repositories.Response[string] {
	err := validateContainerName(container)
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			return r.createBucket(ctx, container)
		})
	}
	if err != nil {
		return azerrors.ToResponse[string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(container, http.StatusCreated)
}

// GetContainer checks a container exists.
func (r *BlobRepository) GetContainer(ctx context.Context, container string) repositories.Response[string] {
	err := validateContainerName(container)
	if err == nil {
		err = r.getContainer(ctx, container)
	}
	if err != nil {
		return azerrors.ToResponse[string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(container, http.StatusOK)
}

// DeleteContainer deletes a container and all its blobs.
func (r *BlobRepository) DeleteContainer(ctx context.Context, container string) repositories.Response[struct{}] {
	err := validateContainerName(container)
	if err == nil {
		err = r.getContainer(ctx, container)
	}
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			return r.removeBucket(ctx, container)
		})
	}
	if err != nil {
		return azerrors.ToResponse[struct{}](r.classifier, err)
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusAccepted)
}

// ListContainers returns the names of the containers.
func (r *BlobRepository) ListContainers(ctx context.Context) repositories.Response[[]string] {
	var names []string
	err := r.retry(ctx, func(ctx context.Context) error {
		var err error
		names, err = r.listBuckets(ctx)
		return err
	})
	if err != nil {
		return azerrors.ToResponse[[]string](r.classifier, err)
	}
	return repositories.SucceededWithStatus(names, http.StatusOK)
}

// UploadBlob stores data as blob name. Without overwrite an existing blob is reported as BlobAlreadyExists.
// Payloads of 10MiB and more are uploaded in parts.
func (r *BlobRepository) UploadBlob(ctx context.Context, container, name string, data []byte, overwrite bool) repositories.Response[BlobInfo] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateBlobName(name)
	}
	if err == nil && !overwrite {
		var exists bool
		if exists, err = r.blobExists(ctx, container, name); err == nil && exists {
			err = azerrors.NewStatusError(azerrors.BlobAlreadyExists, nil)
		}
	}
	var info BlobInfo
	if err == nil {
		task := func(ctx context.Context) error {
			var err error
			info, err = r.upload(ctx, container, name, data, overwrite)
			return err
		}
		if overwrite {
			err = r.retry(ctx, task)
		} else {
			// A repeated If-None-Match put fails on the blob its first attempt wrote.
			err = repositories.RetryUnsent(ctx, r.options.Retry, task, nil)
		}
	}
	if err != nil {
		return azerrors.ToResponse[BlobInfo](r.classifier, err)
	}
	return repositories.SucceededWithStatus(info, http.StatusCreated)
}

// DownloadBlob returns the content of blob name. A missing blob is reported as BlobNotFound.
func (r *BlobRepository) DownloadBlob(ctx context.Context, container, name string) repositories.Response[[]byte] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateBlobName(name)
	}
	var data []byte
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			var err error
			data, err = r.download(ctx, container, name)
			return err
		})
	}
	if err != nil {
		return azerrors.ToResponse[[]byte](r.classifier, err)
	}
	return repositories.SucceededWithStatus(data, http.StatusOK)
}

// GetBlobProperties returns what is known of blob name without its content.
func (r *BlobRepository) GetBlobProperties(ctx context.Context, container, name string) repositories.Response[BlobInfo] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateBlobName(name)
	}
	var info BlobInfo
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			var err error
			info, err = r.headObject(ctx, container, name)
			return err
		})
	}
	if err != nil {
		return azerrors.ToResponse[BlobInfo](r.classifier, err)
	}
	return repositories.SucceededWithStatus(info, http.StatusOK)
}

// BlobExists reports whether blob name exists. A missing blob is a succeeded false, not a failure.
func (r *BlobRepository) BlobExists(ctx context.Context, container, name string) repositories.Response[bool] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateBlobName(name)
	}
	var exists bool
	if err == nil {
		exists, err = r.blobExists(ctx, container, name)
	}
	if err != nil {
		return azerrors.ToResponse[bool](r.classifier, err)
	}
	return repositories.SucceededWithStatus(exists, http.StatusOK)
}

// DeleteBlob deletes blob name. A missing blob is reported as BlobNotFound.
func (r *BlobRepository) DeleteBlob(ctx context.Context, container, name string) repositories.Response[struct{}] {
	err := r.prepare(ctx, container)
	if err == nil {
		err = validateBlobName(name)
	}
	if err == nil {
		// S3 deletes are idempotent, existence is checked first to report missing blobs.
		err = r.retry(ctx, func(ctx context.Context) error {
			_, err := r.headObject(ctx, container, name)
			return err
		})
	}
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			_, err := r.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(container),
				Key:    aws.String(name),
			})
			return err
		})
	}
	if err != nil {
		return azerrors.ToResponse[struct{}](r.classifier, err)
	}
	return repositories.SucceededWithStatus(struct{}{}, http.StatusAccepted)
}

// ListBlobs returns the blobs whose name starts with prefix, in name order. Empty prefix lists all.
func (r *BlobRepository) ListBlobs(ctx context.Context, container, prefix string) repositories.Response[[]BlobInfo] {
	err := r.prepare(ctx, container)
	var result []BlobInfo
	if err == nil {
		err = r.retry(ctx, func(ctx context.Context) error {
			result = nil
			in := &s3.ListObjectsV2Input{Bucket: aws.String(container)}
			if prefix != "" {
				in.Prefix = aws.String(prefix)
			}
			p := s3.NewListObjectsV2Paginator(r.s3Client, in)
			for p.HasMorePages() {
				page, err := p.NextPage(ctx)
				if err != nil {
					return err
				}
				for _, o := range page.Contents {
					result = append(result, BlobInfo{
						Name:         aws.ToString(o.Key),
						Size:         aws.ToInt64(o.Size),
						ETag:         aws.ToString(o.ETag),
						LastModified: aws.ToTime(o.LastModified),
					})
				}
			}
			return nil
		})
	}
	if err != nil {
		return azerrors.ToResponse[[]BlobInfo](r.classifier, err)
	}
	return repositories.SucceededWithStatus(result, http.StatusOK)
}

func (r *BlobRepository) upload(ctx context.Context, container, name string, data []byte, overwrite bool) (BlobInfo, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
		Body:   bytes.NewReader(data),
	}
	if !overwrite {
		// Closes the gap between the existence check and the write on stores honoring conditional writes.
		in.IfNoneMatch = aws.String("*")
	}
	info := BlobInfo{Name: name, Size: int64(len(data))}
	if len(data) >= largeObjectMinSize {
		uploader := manager.NewUploader(r.s3Client, func(u *manager.Uploader) {
			u.PartSize = largeObjectMinSize
			if r.options.Concurrency > 0 {
				u.Concurrency = r.options.Concurrency
			}
		})
		out, err := uploader.Upload(ctx, in)
		if err != nil {
			return BlobInfo{}, r.uploadError(err, overwrite)
		}
		info.ETag = aws.ToString(out.ETag)
		return info, nil
	}
	out, err := r.s3Client.PutObject(ctx, in)
	if err != nil {
		return BlobInfo{}, r.uploadError(err, overwrite)
	}
	info.ETag = aws.ToString(out.ETag)
	return info, nil
}

func (r *BlobRepository) uploadError(err error, overwrite bool) error {
	if !overwrite && r.classifier.Matches(err, azerrors.ConditionNotMet) {
		return azerrors.NewStatusError(azerrors.BlobAlreadyExists, err)
	}
	return err
}

func (r *BlobRepository) download(ctx context.Context, container, name string) ([]byte, error) {
	info, err := r.headObject(ctx, container, name)
	if err != nil {
		return nil, err
	}
	in := &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	}
	if info.Size >= largeObjectMinSize {
		downloader := manager.NewDownloader(r.s3Client, func(d *manager.Downloader) {
			d.PartSize = largeObjectMinSize
			if r.options.Concurrency > 0 {
				d.Concurrency = r.options.Concurrency
			}
		})
		buffer := manager.NewWriteAtBuffer(make([]byte, 0, info.Size))
		if _, err := downloader.Download(ctx, buffer, in); err != nil {
			return nil, err
		}
		return buffer.Bytes(), nil
	}
	result, err := r.s3Client.GetObject(ctx, in)
	if err != nil {
		return nil, err
	}
	defer result.Body.Close()
	return io.ReadAll(result.Body)
}

func (r *BlobRepository) headObject(ctx context.Context, container, name string) (BlobInfo, error) {
	out, err := r.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		err = translateError(err, azerrors.BlobNotFound)
		// S3 answers a HEAD on a missing bucket with the same bodiless 404.
		if r.classifier.Matches(err, azerrors.BlobNotFound) {
			if berr := r.headBucket(ctx, container); berr != nil {
				return BlobInfo{}, berr
			}
		}
		return BlobInfo{}, err
	}
	return BlobInfo{
		Name:         name,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (r *BlobRepository) blobExists(ctx context.Context, container, name string) (bool, error) {
	err := r.retry(ctx, func(ctx context.Context) error {
		_, err := r.headObject(ctx, container, name)
		return err
	})
	if err == nil {
		return true, nil
	}
	if r.classifier.Matches(err, azerrors.BlobNotFound) {
		return false, nil
	}
	return false, err
}

// prepare validates the container name and, when the policy says so, makes sure the bucket exists.
func (r *BlobRepository) prepare(ctx context.Context, container string) error {
	if err := validateContainerName(container); err != nil {
		return err
	}
	_, _, err := provision.Provision(ctx, r.provisioner,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.retry(ctx, func(ctx context.Context) error {
				return r.createBucket(ctx, container)
			})
		},
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, r.getContainer(ctx, container)
		},
		provision.AlreadyExists(r.classifier, azerrors.ContainerAlreadyExists))
	return err
}

func (r *BlobRepository) getContainer(ctx context.Context, container string) error {
	return r.retry(ctx, func(ctx context.Context) error {
		return r.headBucket(ctx, container)
	})
}

func (r *BlobRepository) retry(ctx context.Context, task func(ctx context.Context) error) error {
	return repositories.Retry(ctx, r.options.Retry, task, r.classifier.IsRetryable)
}

var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func validateContainerName(name string) error {
	if name == "" {
		return repositories.NewEmptyArgumentError("container")
	}
	if !bucketNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return repositories.NewInvalidArgumentError("container", fmt.Sprintf("'%s' is not a valid bucket name", name))
	}
	return nil
}

func validateBlobName(name string) error {
	if name == "" {
		return repositories.NewEmptyArgumentError("name")
	}
	if len(name) > maxBlobNameLength {
		return repositories.NewInvalidArgumentError("name", fmt.Sprintf("longer than %d bytes", maxBlobNameLength))
	}
	return nil
}
