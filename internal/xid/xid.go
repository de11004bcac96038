package xid

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a lexically sortable id such as "msg-01J9Z3...".
func New(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
