package gateway

import (
	"errors"
	"net/http"

	"github.com/scanhub-io/coordinator/internal/store"
)

// writeStoreError maps a store sentinel error to a fixed HTTP status,
// never leaking the underlying database error.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDuplicateScan):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrWrongState), errors.Is(err, store.ErrNotOwned), errors.Is(err, store.ErrUnknownRule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAlreadyReported):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
