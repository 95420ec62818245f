package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns an opaque identifier of the form "<prefix>_<uuid>".
func New(prefix string) string {
	id := uuid.New()
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}
