package orchestrator

import (
	"errors"
	"fmt"
	"net/http"

	"nlcd-county/internal/animation"
	"nlcd-county/internal/boundary"
	"nlcd-county/internal/raster"
)

// ErrInvalidRange is returned for a start year after the stop year or a step below 1.
var ErrInvalidRange = errors.New("invalid year range")

// YearError ties a pipeline failure to the year being processed.
type YearError struct {
	Year int
	Err  error
}

func (e *YearError) Error() string {
	return fmt.Sprintf("year %d: %v", e.Year, e.Err)
}

func (e *YearError) Unwrap() error { return e.Err }

// Error kinds reported in metrics and HTTP responses.
const (
	KindNotFound          = "not_found"
	KindAmbiguousMatch    = "ambiguous_match"
	KindSourceUnavailable = "source_unavailable"
	KindGeometryEmpty     = "geometry_empty"
	KindDimensionMismatch = "dimension_mismatch"
	KindInvalidRange      = "invalid_range"
	KindNoFrames          = "no_frames"
	KindBadRequest        = "bad_request"
	KindInternal          = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{boundary.ErrNotFound, KindNotFound},
	{boundary.ErrAmbiguousMatch, KindAmbiguousMatch},
	{boundary.ErrReprojection, KindGeometryEmpty},
	{raster.ErrGeometryEmpty, KindGeometryEmpty},
	{raster.ErrSourceUnavailable, KindSourceUnavailable},
	{animation.ErrDimensionMismatch, KindDimensionMismatch},
	{ErrInvalidRange, KindInvalidRange},
	{animation.ErrNoFrames, KindNoFrames},
	{animation.ErrUnsupportedFormat, KindBadRequest},
}

// Kind maps err to a stable label. Errors outside the taxonomy are "internal".
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// FailedYear returns the year carried by a YearError in err's chain, or 0.
func FailedYear(err error) int {
	var ye *YearError
	if errors.As(err, &ye) {
		return ye.Year
	}
	return 0
}

// HTTPStatus is the response status for an error kind.
func HTTPStatus(kind string) int {
	switch kind {
	case KindInvalidRange, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAmbiguousMatch:
		return http.StatusConflict
	case KindGeometryEmpty, KindDimensionMismatch, KindNoFrames:
		return http.StatusUnprocessableEntity
	case KindSourceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
