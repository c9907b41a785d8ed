package precache

import (
	"errors"
	"fmt"
)

var (
	ErrNoGeneration   = errors.New("precache: generation name is required")
	ErrNoAssets       = errors.New("precache: asset list is empty")
	ErrDuplicateAsset = errors.New("precache: duplicate asset")

	// ErrInstallFailed is matched by every *InstallError.
	ErrInstallFailed = errors.New("precache: install failed")

	// ErrWorkerRedundant is returned by Registration when a worker can no
	// longer be installed or activated.
	ErrWorkerRedundant = errors.New("precache: worker is redundant")
)

// InstallError describes why the install of a generation failed. URL and
// Status are set when a single asset caused the failure.
type InstallError struct {
	Generation string
	URL        string
	Status     int
	Err        error
}

func (e *InstallError) Error() string {
	switch {
	case e.URL != "" && e.Err != nil:
		return fmt.Sprintf("install %q: asset %s: %v", e.Generation, e.URL, e.Err)
	case e.URL != "":
		return fmt.Sprintf("install %q: asset %s: status %d", e.Generation, e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("install %q: %v", e.Generation, e.Err)
	default:
		return fmt.Sprintf("install %q: unknown error", e.Generation)
	}
}

func (e *InstallError) Unwrap() []error {
	errs := make([]error, 0, 2)
	errs = append(errs, ErrInstallFailed)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
