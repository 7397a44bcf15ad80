package checks

import (
	"errors"

	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// AWS error codes inspected by the checkers.
const (
	codeNoSuchBucket            = "NoSuchBucket"
	codeNotFound                = "NotFound"
	codeNoSuchPublicAccessBlock = "NoSuchPublicAccessBlockConfiguration"
	codeEncryptionNotFound      = "ServerSideEncryptionConfigurationNotFoundError"
	codeNoSuchEntity            = "NoSuchEntity"
	codeInvalidAccess           = "InvalidAccessException"
)

// apiErrorCode returns the AWS error code carried by err, or "".
func apiErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// hasErrorCode reports whether err carries one of codes.
func hasErrorCode(err error, codes ...string) bool {
	code := apiErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// httpStatus returns the HTTP status of a failed AWS call, or 0.
func httpStatus(err error) int {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

// errMessage returns the service message of an AWS error, falling back to
// the error code and finally to err.Error(). SDK error strings embed request
// IDs and operation names that make findings noisy.
func errMessage(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		if msg := ae.ErrorMessage(); msg != "" {
			return msg
		}
		if code := ae.ErrorCode(); code != "" {
			return code
		}
	}
	return err.Error()
}

// isNoSuchEntity reports whether err is IAM's NoSuchEntity.
func isNoSuchEntity(err error) bool {
	var nse *iamtypes.NoSuchEntityException
	return errors.As(err, &nse) || hasErrorCode(err, codeNoSuchEntity)
}
