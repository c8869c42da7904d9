package wsbridge

import "fmt"

// Errors returned synchronously to callers that misuse the API.
var (
	ErrInvalidState        = fmt.Errorf("socket is not open")
	ErrAlreadyAttached     = fmt.Errorf("socket is already attached")
	ErrAlreadyRegistered   = fmt.Errorf("socket is already registered")
	ErrNotUpgradeRequest   = fmt.Errorf("upgrade not requested")
	ErrUnsupportedDataType = fmt.Errorf("unsupported data type")
)
