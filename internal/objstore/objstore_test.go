package objstore

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"

	"tileview/internal/models"
)

func TestClassify(t *testing.T) {
	notFound := []error{
		awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil),
		awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil),
		awserr.New("NotFound", "not found", nil),
	}
	for _, err := range notFound {
		assert.ErrorIs(t, classify(err), models.ErrBucketNotFound, err.Error())
	}

	denied := []error{
		awserr.New("AccessDenied", "access denied", nil),
		awserr.New("Forbidden", "forbidden", nil),
	}
	for _, err := range denied {
		assert.ErrorIs(t, classify(err), models.ErrAccessDenied, err.Error())
	}

	// Throttling and other transient codes pass through untouched so the
	// caller's retry policy applies.
	transient := awserr.New("SlowDown", "reduce request rate", nil)
	got := classify(transient)
	assert.NotErrorIs(t, got, models.ErrBucketNotFound)
	assert.NotErrorIs(t, got, models.ErrAccessDenied)

	plain := errors.New("dial tcp: connection refused")
	assert.Equal(t, plain, classify(plain))
}
