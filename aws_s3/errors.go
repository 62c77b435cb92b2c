package aws_s3

import (
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
)

// translateError maps the bodiless 404 of HEAD requests, which carries no S3 error code, to notFound.
// Other errors are returned as is, the classifier reads their S3 error codes.
func translateError(err error, notFound azerrors.AzError) error {
	if err == nil {
		return nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return azerrors.NewStatusError(notFound, err)
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return azerrors.NewStatusError(notFound, err)
	}
	return err
}
