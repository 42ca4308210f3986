// Package icd holds the standard interchange definitions both peers agree
// on out of band: the well-known error type and path, plus the stock
// endpoints and topics every link carries.
package icd

import (
	"github.com/danmuck/framelink/wire"
)

// ErrorPath is the conventional path string for the wire error key. Both
// peers must construct their engines with the same path and error type.
const ErrorPath = "error"

// Stock descriptors carried by every deployment.
var (
	PingEndpoint = wire.NewEndpoint[uint32, uint32]("ping", "framelink/ping")
	LoggingTopic = wire.NewTopic[string]("logging", "framelink/logging", wire.ToClient)
)
