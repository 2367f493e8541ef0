package flowerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntrospectionFailedError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("native panic")
	err := &IntrospectionFailedError{FactoryName: "hlssink2", Detail: "boom", Cause: cause}

	assert.ErrorIs(t, err, cause)
}

func TestPropertyError_UnwrapsToCause(t *testing.T) {
	cause := errors.New("write failed")
	err := &PropertyError{Detail: "boom", Cause: cause}

	assert.ErrorIs(t, err, cause)
}

func TestErrorKinds_AreDistinguishableViaErrorsAs(t *testing.T) {
	var err error = &NotFoundError{Kind: "flow", ID: "flow-1"}

	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "flow", nf.Kind)

	var notRunning *NotRunningError
	assert.False(t, errors.As(err, &notRunning))
}
