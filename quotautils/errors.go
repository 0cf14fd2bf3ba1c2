package quotautils

import "github.com/pkg/errors"

// NegativeValueError is the error returned from CheckNonNegative or other methods if the number being
// tested is negative
var NegativeValueError error = errors.New("number must be non-negative")
