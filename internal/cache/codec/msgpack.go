package codec

import "github.com/vmihailenco/msgpack/v5"

type msgpackCodec struct{}

// Msgpack returns a compact binary codec for large entities (category
// listings, carts) where payload size dominates.
func Msgpack() Codec { return msgpackCodec{} }

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return "msgpack" }
