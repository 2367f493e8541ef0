package api

import (
	"net/http"

	"github.com/flowforge/runtime/pkg/flowerrors"
)

// writeError maps a typed flowerrors kind to the REST status code
// spec.md's resource table assigns it, falling back to 500 for anything
// unrecognized.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *flowerrors.NotFoundError, *flowerrors.UnknownElementError, *flowerrors.UnknownPadError, *flowerrors.UnknownBlockError:
		status = http.StatusNotFound
	case *flowerrors.InvalidStateError, *flowerrors.NotRunningError:
		status = http.StatusConflict
	case *flowerrors.BlockConfigInvalidError, *flowerrors.LinkError:
		status = http.StatusBadRequest
	case *flowerrors.UnknownPropertyError, *flowerrors.TypeMismatchError, *flowerrors.ValueOutOfRangeError:
		status = http.StatusUnprocessableEntity
	case *flowerrors.StartupTimeoutError:
		status = http.StatusGatewayTimeout
	case *flowerrors.IntrospectionFailedError, *flowerrors.RuntimeError, *flowerrors.PropertyError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
