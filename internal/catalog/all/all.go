// Package all registers every built-in catalog store for side effects.
// Kinds made available: sqlite, postgres (plus the built-in none/memory).
package all

import (
	_ "github.com/anhlhn1/udacity-data-lake/internal/catalog/postgres"
	_ "github.com/anhlhn1/udacity-data-lake/internal/catalog/sqlite"
)
