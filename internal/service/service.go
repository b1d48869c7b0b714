// Package service implements the campus operations use cases: facility
// management, booking lifecycle, maintenance tickets, comments and
// notifications. Services receive the authenticated principal explicitly
// and return typed errors from pkg/errors.
package service

import (
	"database/sql"
	"errors"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
