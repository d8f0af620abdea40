package swcache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNilRequest    = errors.New("swcache: nil request")
	ErrUnknownEvent  = errors.New("swcache: unknown event type")
	ErrNotInstalled  = errors.New("swcache: worker is not installed")
	ErrInstalled     = errors.New("swcache: worker already installed")
	ErrWorkerClosed  = errors.New("swcache: worker closed")
	errNetworkStatus = errors.New("non-2xx response")
)

// AssetError describes one critical asset that could not be pre-cached.
// Status is 0 when the request itself failed.
type AssetError struct {
	URL    string
	Status int
	Err    error
}

func (e *AssetError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// InstallError is returned when the critical asset manifest could not be
// written. Optional prefetch failures never produce one.
type InstallError struct {
	Assets   []*AssetError
	StoreErr error
}

func (e *InstallError) Error() string {
	switch {
	case len(e.Assets) > 0 && e.StoreErr != nil:
		return fmt.Sprintf("install failed: %d critical assets failed (%s); store: %v",
			len(e.Assets), e.urls(), e.StoreErr)
	case len(e.Assets) > 0:
		return fmt.Sprintf("install failed: %d critical assets failed (%s)", len(e.Assets), e.urls())
	case e.StoreErr != nil:
		return fmt.Sprintf("install failed: store critical assets: %v", e.StoreErr)
	default:
		return "install failed: unknown error"
	}
}

func (e *InstallError) urls() string {
	urls := make([]string, len(e.Assets))
	for i, a := range e.Assets {
		urls[i] = a.URL
	}
	return strings.Join(urls, ", ")
}

func (e *InstallError) Unwrap() []error {
	errs := make([]error, 0, len(e.Assets)+1)
	for _, a := range e.Assets {
		errs = append(errs, a)
	}
	if e.StoreErr != nil {
		errs = append(errs, e.StoreErr)
	}
	return errs
}
