package broadcast

import "errors"

var ErrNegativeCapacity = errors.New("broadcast: negative replay capacity")
