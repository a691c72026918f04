package siyuan

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewNodeID returns a kernel-format node id: YYYYMMDDHHmmss-xxxxxxx,
// where the suffix is 7 lowercase hex characters.
func NewNodeID() string {
	return NewNodeIDAt(time.Now())
}

// NewNodeIDAt returns a node id stamped with the given time.
func NewNodeIDAt(at time.Time) string {
	u := uuid.New()
	suffix := hex.EncodeToString(u[:])[:7]
	return at.Format("20060102150405") + "-" + suffix
}
