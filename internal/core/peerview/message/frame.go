package message

import (
	"bufio"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-peerview/pkg/types"
)

// MaxFrameSize 单帧上限
const MaxFrameSize = 1 << 20

// WriteFrame 以 uvarint 长度前缀写出封装
func WriteFrame(w io.Writer, e *types.Envelope) error {
	payload := MarshalEnvelope(e)
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	if _, err := w.Write(varint.ToUvarint(uint64(len(payload)))); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame 读取一帧并解析封装
func ReadFrame(r io.Reader) (*types.Envelope, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		bufr := bufio.NewReader(r)
		br, r = bufr, bufr
	}

	size, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return UnmarshalEnvelope(payload)
}
