package metrics

import (
	"context"

	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

// meteredTransport 记录流量的传输包装
type meteredTransport struct {
	interfaces.Transport
	bw *Bandwidth
}

// MeteredTransport 用 bw 统计经过 tr 的消息体字节
//
// 只统计成功发送的消息。
func MeteredTransport(tr interfaces.Transport, bw *Bandwidth) interfaces.Transport {
	if bw == nil {
		return tr
	}
	return &meteredTransport{Transport: tr, bw: bw}
}

func (t *meteredTransport) Send(ctx context.Context, dest interfaces.Destination, env *types.Envelope) error {
	if err := t.Transport.Send(ctx, dest, env); err != nil {
		return err
	}
	t.bw.LogSent(env.Protocol, int64(len(env.Body)))
	return nil
}

func (t *meteredTransport) SetHandler(protocol string, h interfaces.InboundHandler) {
	if h == nil {
		t.Transport.SetHandler(protocol, nil)
		return
	}
	t.Transport.SetHandler(protocol, func(ctx context.Context, env *types.Envelope) error {
		t.bw.LogRecv(env.Protocol, int64(len(env.Body)))
		return h(ctx, env)
	})
}
