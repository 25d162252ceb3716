// Package store defines interfaces for persistence dependencies of the
// pipeline stages. Implementations live in other packages; this package
// must not import database drivers or concrete clients.
package store
