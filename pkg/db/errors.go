package db

import "errors"

// ErrTxRequired is returned by write paths that must join the caller's transaction.
var ErrTxRequired = errors.New("db: operation requires an active transaction")
