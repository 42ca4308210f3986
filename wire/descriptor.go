package wire

import (
	"fmt"
	"reflect"
)

// Direction scopes a topic to the peer it flows toward.
type Direction uint8

const (
	ToClient Direction = iota
	ToServer
)

func (d Direction) String() string {
	if d == ToServer {
		return "to-server"
	}
	return "to-client"
}

// Endpoint describes one request/response pair at a path. Descriptors are
// program constants: build them once at package level with NewEndpoint.
type Endpoint[Req, Resp any] struct {
	Name    string
	Path    string
	ReqKey  Key
	RespKey Key
}

// NewEndpoint derives both keys for path from the Req and Resp schemas.
// It panics on underivable schemas: descriptors are static declarations and
// a bad one is a programming error, not a runtime condition.
func NewEndpoint[Req, Resp any](name, path string) Endpoint[Req, Resp] {
	reqKey, err := KeyForType(path, reflect.TypeFor[Req]())
	if err != nil {
		panic(fmt.Sprintf("wire: endpoint %s request: %v", path, err))
	}
	respKey, err := KeyForType(path, reflect.TypeFor[Resp]())
	if err != nil {
		panic(fmt.Sprintf("wire: endpoint %s response: %v", path, err))
	}
	return Endpoint[Req, Resp]{Name: name, Path: path, ReqKey: reqKey, RespKey: respKey}
}

// Topic describes one one-way message stream at a path.
type Topic[M any] struct {
	Name      string
	Path      string
	Key       Key
	Direction Direction
}

// NewTopic derives the topic key for path from the message schema.
// Panics on underivable schemas, as NewEndpoint does.
func NewTopic[M any](name, path string, dir Direction) Topic[M] {
	key, err := KeyForType(path, reflect.TypeFor[M]())
	if err != nil {
		panic(fmt.Sprintf("wire: topic %s: %v", path, err))
	}
	return Topic[M]{Name: name, Path: path, Key: key, Direction: dir}
}
