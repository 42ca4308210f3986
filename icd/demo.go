package icd

import "github.com/danmuck/framelink/wire"

// Demo interchange used by the example binaries.

// SleepRequest asks the device to wait before replying.
type SleepRequest struct {
	Millis uint32
}

// SleepDone confirms the elapsed wait.
type SleepDone struct {
	Millis uint32
}

// Accel is one accelerometer sample.
type Accel struct {
	X int32
	Y int32
	Z int32
}

var (
	SleepEndpoint = wire.NewEndpoint[SleepRequest, SleepDone]("sleep", "demo/sleep")
	AccelTopic    = wire.NewTopic[Accel]("accel", "demo/accel", wire.ToClient)
)
