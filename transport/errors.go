package transport

import "errors"

// ErrParameterInvalid is returned when a port_id exceeds PortMax.
var ErrParameterInvalid = errors.New("transport: parameter invalid")
