package physics

import "errors"

// ErrSingular indicates a flag at which the inverse flatness map is
// undefined, such as zero speed for the car.
var ErrSingular = errors.New("physics: flatness map is singular")
