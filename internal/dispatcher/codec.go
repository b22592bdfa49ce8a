package dispatcher

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// Wire contract of the dispatcher Route stream. Frames travel as opaque
// bytes in both directions.
const (
	ServiceName = "phantom.dispatcher.v1.Dispatcher"
	StreamName  = "Route"
	RouteMethod = "/" + ServiceName + "/" + StreamName
	CodecName   = "phantom-frame"
)

// RouteStreamDesc describes the bidirectional Route stream.
var RouteStreamDesc = grpc.StreamDesc{
	StreamName:    StreamName,
	ServerStreams: true,
	ClientStreams: true,
}

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// frameCodec passes *[]byte through unchanged.
type frameCodec struct{}

func (frameCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *[]byte:
		return *m, nil
	case []byte:
		return m, nil
	default:
		return nil, fmt.Errorf("%s: cannot marshal %T", CodecName, v)
	}
}

func (frameCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("%s: cannot unmarshal into %T", CodecName, v)
	}
	*p = append([]byte(nil), data...)
	return nil
}

func (frameCodec) Name() string { return CodecName }
