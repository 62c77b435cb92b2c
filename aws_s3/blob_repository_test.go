package aws_s3

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
)

var ctx = context.Background()

func testOptions(policy repositories.CreateResourcePolicy) BlobOptions {
	o := DefaultBlobOptions()
	o.CreateResourcePolicy = policy
	o.Retry = repositories.RetryOptions{
		Mode:           repositories.Fixed,
		Delay:          time.Millisecond,
		MaxDelay:       time.Millisecond,
		MaxRetries:     1,
		NetworkTimeout: 5 * time.Second,
	}
	return o
}

func newTestRepository(policy repositories.CreateResourcePolicy) (*BlobRepository, *fakeS3) {
	f := newFakeS3()
	return newBlobRepository(f, "us-west-2", testOptions(policy)), f
}

func expectFailure[T any](t *testing.T, res repositories.Response[T], want azerrors.AzError) {
	t.Helper()
	if res.Succeeded || res.Err != nil || res.Message != want.Message || res.StatusCode != want.Status {
		t.Errorf("got %+v, want expected failure %v", res, want)
	}
}

func Test_Blob_Containers(t *testing.T) {
	r, f := newTestRepository(repositories.Never)

	if res := r.CreateContainer(ctx, "photos"); !res.Succeeded || res.StatusCode != http.StatusCreated {
		t.Fatalf("CreateContainer got %+v", res)
	}
	expectFailure(t, r.CreateContainer(ctx, "photos"), azerrors.ContainerAlreadyExists)
	if res := r.GetContainer(ctx, "photos"); !res.Succeeded {
		t.Errorf("GetContainer got %+v", res)
	}
	expectFailure(t, r.GetContainer(ctx, "videos"), azerrors.ContainerNotFound)
	r.CreateContainer(ctx, "videos")
	if res := r.ListContainers(ctx); !res.Succeeded || len(res.Value) != 2 || res.Value[0] != "photos" {
		t.Errorf("ListContainers got %+v", res)
	}

	// Deleting a container deletes its blobs first.
	for _, n := range []string{"a", "b", "c"} {
		r.UploadBlob(ctx, "photos", n, []byte(n), false)
	}
	if res := r.DeleteContainer(ctx, "photos"); !res.Succeeded || res.StatusCode != http.StatusAccepted {
		t.Fatalf("DeleteContainer got %+v", res)
	}
	if _, ok := f.buckets["photos"]; ok {
		t.Errorf("bucket was not deleted")
	}
	expectFailure(t, r.DeleteContainer(ctx, "photos"), azerrors.ContainerNotFound)
}

func Test_Blob_UploadDownload(t *testing.T) {
	r, f := newTestRepository(repositories.OnlyFirstTime)

	up := r.UploadBlob(ctx, "photos", "dir/cat.png", []byte("meow"), false)
	if !up.Succeeded || up.StatusCode != http.StatusCreated || up.Value.Size != 4 || up.Value.ETag == "" {
		t.Fatalf("UploadBlob got %+v", up)
	}
	if _, ok := f.buckets["photos"]; !ok {
		t.Fatalf("container was not provisioned")
	}
	expectFailure(t, r.UploadBlob(ctx, "photos", "dir/cat.png", []byte("purr"), false), azerrors.BlobAlreadyExists)
	if res := r.UploadBlob(ctx, "photos", "dir/cat.png", []byte("purr"), true); !res.Succeeded {
		t.Errorf("overwrite got %+v", res)
	}

	down := r.DownloadBlob(ctx, "photos", "dir/cat.png")
	if !down.Succeeded || string(down.Value) != "purr" {
		t.Errorf("DownloadBlob got %+v", down)
	}
	expectFailure(t, r.DownloadBlob(ctx, "photos", "dog.png"), azerrors.BlobNotFound)

	props := r.GetBlobProperties(ctx, "photos", "dir/cat.png")
	if !props.Succeeded || props.Value.Size != 4 || props.Value.LastModified.IsZero() {
		t.Errorf("GetBlobProperties got %+v", props)
	}
	if f.multipartCalls != 0 {
		t.Errorf("small blobs went multipart")
	}
}

func Test_Blob_ConditionalWriteRace(t *testing.T) {
	r, f := newTestRepository(repositories.OnlyFirstTime)
	r.CreateContainer(ctx, "photos")
	f.buckets["photos"]["late.png"] = fakeObject{data: []byte("x")}

	// The existence check passed, the store refuses the write.
	_, err := r.upload(ctx, "photos", "late.png", []byte("y"), false)
	if !r.classifier.Matches(err, azerrors.BlobAlreadyExists) {
		t.Errorf("got %v, want BlobAlreadyExists", err)
	}
}

func Test_Blob_ConditionalWriteRaceLargeBlob(t *testing.T) {
	r, f := newTestRepository(repositories.OnlyFirstTime)
	r.CreateContainer(ctx, "backups")
	f.buckets["backups"]["db.dump"] = fakeObject{data: []byte("x")}

	data := bytes.Repeat([]byte("0123456789abcdef"), largeObjectMinSize/16+1)
	_, err := r.upload(ctx, "backups", "db.dump", data, false)
	if !r.classifier.Matches(err, azerrors.BlobAlreadyExists) {
		t.Errorf("got %v, want BlobAlreadyExists", err)
	}
	if got := f.buckets["backups"]["db.dump"].data; string(got) != "x" {
		t.Errorf("existing blob was overwritten")
	}
}

func Test_Blob_LostReplyOfConditionalUploadIsNotRetried(t *testing.T) {
	r, f := newTestRepository(repositories.OnlyFirstTime)
	r.CreateContainer(ctx, "photos")
	f.putReplyErr = errors.New("read tcp 127.0.0.1:9000: i/o timeout")

	res := r.UploadBlob(ctx, "photos", "cat.png", []byte("meow"), false)
	if res.Succeeded || res.Err == nil || res.StatusCode == http.StatusConflict {
		t.Errorf("got %+v, want unexpected failure", res)
	}
	if f.putCalls != 1 {
		t.Errorf("got %d puts, want 1", f.putCalls)
	}

	// Overwriting puts are idempotent and retried.
	f.putCalls = 0
	r.UploadBlob(ctx, "photos", "cat.png", []byte("purr"), true)
	if f.putCalls != 2 {
		t.Errorf("got %d overwriting puts, want 2", f.putCalls)
	}
}

func Test_Blob_LargeBlobsUseTransferManager(t *testing.T) {
	r, f := newTestRepository(repositories.OnlyFirstTime)

	data := bytes.Repeat([]byte("0123456789abcdef"), largeObjectMinSize/16+1)
	up := r.UploadBlob(ctx, "backups", "db.dump", data, true)
	if !up.Succeeded || up.Value.Size != int64(len(data)) {
		t.Fatalf("UploadBlob got %+v", up)
	}
	if f.multipartCalls != 1 {
		t.Errorf("got %d multipart uploads, want 1", f.multipartCalls)
	}

	down := r.DownloadBlob(ctx, "backups", "db.dump")
	if !down.Succeeded || !bytes.Equal(down.Value, data) {
		t.Fatalf("DownloadBlob got %d bytes, succeeded %v", len(down.Value), down.Succeeded)
	}
	if f.rangedGets < 2 {
		t.Errorf("got %d ranged gets, want the download split in parts", f.rangedGets)
	}
}

func Test_Blob_ExistsDeleteList(t *testing.T) {
	r, _ := newTestRepository(repositories.OnlyFirstTime)
	for _, n := range []string{"logs/1", "logs/2", "logs/3", "img/1", "readme"} {
		r.UploadBlob(ctx, "data", n, []byte(n), false)
	}

	if res := r.BlobExists(ctx, "data", "logs/1"); !res.Succeeded || !res.Value {
		t.Errorf("BlobExists got %+v", res)
	}
	if res := r.BlobExists(ctx, "data", "logs/9"); !res.Succeeded || res.Value {
		t.Errorf("BlobExists of a missing blob got %+v", res)
	}

	list := r.ListBlobs(ctx, "data", "logs/")
	if !list.Succeeded || len(list.Value) != 3 || list.Value[0].Name != "logs/1" || list.Value[2].Name != "logs/3" {
		t.Errorf("ListBlobs got %+v", list)
	}
	if all := r.ListBlobs(ctx, "data", ""); len(all.Value) != 5 {
		t.Errorf("ListBlobs all got %+v", all)
	}

	if res := r.DeleteBlob(ctx, "data", "logs/1"); !res.Succeeded || res.StatusCode != http.StatusAccepted {
		t.Errorf("DeleteBlob got %+v", res)
	}
	expectFailure(t, r.DeleteBlob(ctx, "data", "logs/1"), azerrors.BlobNotFound)
}

func Test_Blob_NeverPolicyMissingContainer(t *testing.T) {
	r, _ := newTestRepository(repositories.Never)
	expectFailure(t, r.UploadBlob(ctx, "nope", "x", []byte("x"), true), azerrors.ContainerNotFound)
	expectFailure(t, r.UploadBlob(ctx, "nope", "x", []byte("x"), false), azerrors.ContainerNotFound)
	expectFailure(t, r.ListBlobs(ctx, "nope", ""), azerrors.ContainerNotFound)
	expectFailure(t, r.DownloadBlob(ctx, "nope", "x"), azerrors.ContainerNotFound)
	expectFailure(t, r.GetBlobProperties(ctx, "nope", "x"), azerrors.ContainerNotFound)
	expectFailure(t, r.BlobExists(ctx, "nope", "x"), azerrors.ContainerNotFound)
	expectFailure(t, r.DeleteBlob(ctx, "nope", "x"), azerrors.ContainerNotFound)
}

func Test_Blob_TransportErrorIsUnexpected(t *testing.T) {
	r, f := newTestRepository(repositories.Never)
	f.headBucketErr = errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")
	res := r.GetContainer(ctx, "photos")
	if res.Succeeded || res.Err == nil {
		t.Errorf("got %+v, want unexpected failure", res)
	}
}

func Test_Blob_CallerErrors(t *testing.T) {
	r, _ := newTestRepository(repositories.OnlyFirstTime)
	for _, res := range []repositories.Response[string]{
		r.CreateContainer(ctx, ""),
		r.CreateContainer(ctx, "Upper"),
		r.CreateContainer(ctx, "a..b"),
		r.GetContainer(ctx, "x"),
	} {
		if res.Succeeded || res.Err == nil || res.StatusCode != http.StatusBadRequest {
			t.Errorf("got %+v, want caller error", res)
		}
	}
	if res := r.UploadBlob(ctx, "photos", "", nil, true); res.Err == nil || res.StatusCode != http.StatusBadRequest {
		t.Errorf("empty blob name got %+v", res)
	}
	if _, err := NewBlobRepository(nil, "", DefaultBlobOptions()); err == nil {
		t.Errorf("nil client got no error")
	}
}

func Test_TranslateError(t *testing.T) {
	err := translateError(&types.NotFound{}, azerrors.BlobNotFound)
	if !azerrors.NewClassifier(azerrors.Blob).Matches(err, azerrors.BlobNotFound) {
		t.Errorf("got %v", err)
	}
	other := errors.New("boom")
	if translateError(other, azerrors.BlobNotFound) != other {
		t.Errorf("unrelated error was translated")
	}
	if translateError(nil, azerrors.BlobNotFound) != nil {
		t.Errorf("nil was translated")
	}
}

func Test_Blob_Integration(t *testing.T) {
	if os.Getenv("AZREPO_S3_TEST") != "1" {
		t.Skip("skipping S3 integration test; set AZREPO_S3_TEST=1 to run")
	}
	client := Connect(Config{
		HostEndpointUrl: os.Getenv("AZREPO_S3_ENDPOINT"),
		Region:          "us-east-1",
		Username:        os.Getenv("AZREPO_S3_USERNAME"),
		Password:        os.Getenv("AZREPO_S3_PASSWORD"),
	})
	r, err := NewBlobRepository(client, "us-east-1", DefaultBlobOptions())
	if err != nil {
		t.Fatal(err)
	}
	container := "azrepo-it-" + repositories.NewUUID().String()[:8]
	defer r.DeleteContainer(ctx, container)

	if res := r.UploadBlob(ctx, container, "hello.txt", []byte("hello"), false); !res.Succeeded {
		t.Fatalf("UploadBlob got %+v", res)
	}
	if res := r.DownloadBlob(ctx, container, "hello.txt"); !res.Succeeded || string(res.Value) != "hello" {
		t.Errorf("DownloadBlob got %+v", res)
	}
}
