package ide

import "errors"

// ErrNoHub is returned by Server when the IDE was built without WithHub.
var ErrNoHub = errors.New("ide built without a terminal hub")
