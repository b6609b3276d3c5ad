package topology

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/slotkv/codec"
)

// Snapshot encodings accepted by NewCodec.
const (
	CodecMsgpack  = "msgpack"
	CodecCBOR     = "cbor"
	CodecJSON     = "json"
	CodecProtobuf = "protobuf"
)

// NewCodec returns the snapshot codec registered under name ("" => msgpack).
// maxBytes > 0 rejects stored snapshots larger than that before decoding.
func NewCodec(name string, maxBytes int) (codec.Codec[Topology], error) {
	var c codec.Codec[Topology]
	switch name {
	case "", CodecMsgpack:
		c = codec.Msgpack[Topology]{}
	case CodecCBOR:
		cb, err := codec.NewCBOR[Topology](true)
		if err != nil {
			return nil, err
		}
		c = cb
	case CodecJSON:
		c = codec.JSON[Topology]{}
	case CodecProtobuf:
		c = NewProtoCodec()
	default:
		return nil, fmt.Errorf("topology: unknown codec %q", name)
	}
	if maxBytes > 0 {
		c = codec.Limit[Topology]{Inner: c, MaxDecode: maxBytes}
	}
	return c, nil
}

// ProtoCodec stores snapshots as a google.protobuf.Struct so readers in other
// languages only need the well-known types.
type ProtoCodec struct {
	pb codec.Protobuf[*structpb.Struct]
}

func NewProtoCodec() ProtoCodec {
	return ProtoCodec{pb: codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
}

func (c ProtoCodec) Encode(t Topology) ([]byte, error) {
	nodes := make([]any, len(t.Nodes))
	for i, n := range t.Nodes {
		nodes[i] = map[string]any{
			"id":      n.ID,
			"master":  n.MasterAddr,
			"replica": n.ReplicaAddr,
			"min":     n.Slots.Min,
			"max":     n.Slots.Max,
		}
	}
	s, err := structpb.NewStruct(map[string]any{"nodes": nodes})
	if err != nil {
		return nil, err
	}
	return c.pb.Encode(s)
}

func (c ProtoCodec) Decode(b []byte) (Topology, error) {
	s, err := c.pb.Decode(b)
	if err != nil {
		return Topology{}, err
	}
	list, ok := s.GetFields()["nodes"]
	if !ok || list.GetListValue() == nil {
		return Topology{}, errors.New("topology: protobuf snapshot has no nodes list")
	}
	vals := list.GetListValue().GetValues()
	t := Topology{Nodes: make([]ServerNode, 0, len(vals))}
	for _, v := range vals {
		f := v.GetStructValue().GetFields()
		if f == nil {
			return Topology{}, errors.New("topology: protobuf snapshot node is not a struct")
		}
		t.Nodes = append(t.Nodes, ServerNode{
			ID:          f["id"].GetStringValue(),
			MasterAddr:  f["master"].GetStringValue(),
			ReplicaAddr: f["replica"].GetStringValue(),
			Slots: SlotRange{
				Min: int(f["min"].GetNumberValue()),
				Max: int(f["max"].GetNumberValue()),
			},
		})
	}
	return t, nil
}
