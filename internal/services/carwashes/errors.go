package carwashes

import "errors"

// ErrCarwashNotFound - carwash not found in DB.
var ErrCarwashNotFound = errors.New("carwash not found")

// ErrCreateCarwash is returned when carwash creation fails.
var ErrCreateCarwash = errors.New("failed to create carwash")

// ErrListCarwashes is returned when the owned-carwash query fails.
var ErrListCarwashes = errors.New("failed to list carwashes")

// ErrCreateCarwashesRepo is returned when the repository cannot be built.
var ErrCreateCarwashesRepo = errors.New("failed to create carwashes repository")
