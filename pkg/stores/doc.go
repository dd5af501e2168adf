// Package stores persists command journals. A journal session records every
// command a worker sends and every callback it receives, in order, in a
// SQLite database with WAL mode and embedded migrations.
package stores
