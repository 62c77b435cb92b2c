package cassandra

import (
	"errors"
	"strings"

	"github.com/gocql/gocql"

	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
)

// isUnsent reports whether err is a gocql failure raised before a request was written to a host.
func isUnsent(err error) bool {
	return errors.Is(err, gocql.ErrNoConnections) || errors.Is(err, gocql.ErrSessionClosed)
}

// translateError maps native gocql failures the catalog knows about to a StatusError. Others are
// returned as is.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gocql.ErrNotFound) {
		return azerrors.NewStatusError(azerrors.ResourceNotFound, err)
	}
	var ae *gocql.RequestErrAlreadyExists
	if errors.As(err, &ae) {
		return azerrors.NewStatusError(azerrors.TableAlreadyExists, err)
	}
	var re gocql.RequestError
	if errors.As(err, &re) && re.Code() == gocql.ErrCodeInvalid {
		msg := strings.ToLower(re.Message())
		if strings.Contains(msg, "unconfigured table") || strings.Contains(msg, "doesn't exist") {
			return azerrors.NewStatusError(azerrors.TableNotFound, err)
		}
	}
	return err
}
