// Package all registers every built-in storage backend. Import it for side
// effects:
//
//	import _ "github.com/anhlhn1/udacity-data-lake/internal/storage/all"
//
// Schemes made available: file (and bare paths), mem, s3, s3a, s3n.
package all

import (
	_ "github.com/anhlhn1/udacity-data-lake/internal/storage/local"
	_ "github.com/anhlhn1/udacity-data-lake/internal/storage/memory"
	_ "github.com/anhlhn1/udacity-data-lake/internal/storage/s3"
)
