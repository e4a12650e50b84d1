package launch

import "errors"

var (
	ErrLicense            = errors.New("launch: engine runtime license not found")
	ErrBind               = errors.New("launch: error binding to socket")
	ErrNotReady           = errors.New("launch: application not ready")
	ErrExhausted          = errors.New("launch: run attempts exhausted")
	ErrInstallDirNotFound = errors.New("launch: install dir not found")
)

// Diagnostic sentinels the application writes to stderr. These strings are
// owned by the application; matching is substring-based because the lines
// carry variable prefixes and error codes.
const (
	readyMarker   = "STK/CON: Accepting connection requests"
	licenseMarker = "STK Engine Runtime license not found"
	bindMarker    = "STK/CON: Error binding to socket, error"
)
