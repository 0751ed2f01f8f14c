package redirects

import "errors"

// Sentinel errors for the managed redirect service layer.
var (
	ErrNotFound      = errors.New("redirect not found")
	ErrUnknownSite   = errors.New("unknown site")
	ErrPathReserved  = errors.New("path is reserved by the gateway")
	ErrDuplicatePath = errors.New("a redirect already exists for this path")
	ErrInvalidWindow = errors.New("window end must be after start")
)
