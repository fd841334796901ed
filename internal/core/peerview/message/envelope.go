package message

import (
	"fmt"

	"github.com/klauspost/compress/s2"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-peerview/pkg/types"
)

const (
	// CompressThreshold 超过该长度的消息体使用 s2 压缩
	CompressThreshold = 1024

	// MaxBodySize 解压后消息体的上限
	MaxBodySize = MaxFrameSize
)

// 字段编号
const (
	fieldProtocol   protowire.Number = 1
	fieldSrc        protowire.Number = 2
	fieldElement    protowire.Number = 3
	fieldBody       protowire.Number = 4
	fieldCompressed protowire.Number = 5
)

// NewEnvelope 编码消息并封装
func NewEnvelope(src types.PeerID, m Message) (*types.Envelope, error) {
	element, body, err := Encode(m)
	if err != nil {
		return nil, err
	}
	return &types.Envelope{
		Protocol: ProtocolName,
		Src:      src,
		Element:  element,
		Body:     body,
	}, nil
}

// Open 解码封装内的消息
func Open(e *types.Envelope) (Message, error) {
	return Decode(e.Element, e.Body)
}

// MarshalEnvelope 序列化封装
func MarshalEnvelope(e *types.Envelope) []byte {
	body := e.Body
	compressed := len(body) > CompressThreshold
	if compressed {
		body = s2.Encode(nil, body)
	}

	b := make([]byte, 0, len(e.Protocol)+len(e.Src)+len(e.Element)+len(body)+16)
	b = protowire.AppendTag(b, fieldProtocol, protowire.BytesType)
	b = protowire.AppendString(b, e.Protocol)
	b = protowire.AppendTag(b, fieldSrc, protowire.BytesType)
	b = protowire.AppendString(b, string(e.Src))
	b = protowire.AppendTag(b, fieldElement, protowire.BytesType)
	b = protowire.AppendString(b, e.Element)
	b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	if compressed {
		b = protowire.AppendTag(b, fieldCompressed, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

// UnmarshalEnvelope 反序列化封装
//
// 未知字段被跳过。
func UnmarshalEnvelope(b []byte) (*types.Envelope, error) {
	var (
		e          types.Envelope
		compressed bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldCompressed && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, protowire.ParseError(n))
			}
			compressed = v != 0
			b = b[n:]
		case typ == protowire.BytesType && num >= fieldProtocol && num <= fieldBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, protowire.ParseError(n))
			}
			switch num {
			case fieldProtocol:
				e.Protocol = string(v)
			case fieldSrc:
				e.Src = types.PeerID(v)
			case fieldElement:
				e.Element = string(v)
			case fieldBody:
				e.Body = append([]byte(nil), v...)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if e.Element == "" {
		return nil, fmt.Errorf("%w: missing element", ErrInvalidEnvelope)
	}
	if compressed {
		// 先校验声明的解压长度，再分配缓冲区
		n, err := s2.DecodedLen(e.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrInvalidEnvelope, err)
		}
		if n > MaxBodySize {
			return nil, fmt.Errorf("%w: decompressed body %d bytes", ErrInvalidEnvelope, n)
		}
		body, err := s2.Decode(nil, e.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrInvalidEnvelope, err)
		}
		e.Body = body
	}
	return &e, nil
}
