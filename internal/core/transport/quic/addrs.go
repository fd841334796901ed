package quic

import (
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/dep2p/go-peerview/pkg/types"
)

// interfaceAddrs 返回本机接口地址，测试中可替换
var interfaceAddrs = net.InterfaceAddrs

// advertisedAddrs 计算对外公布的端点地址
//
// 配置了 AnnounceAddrs 时直接使用；监听通配地址时展开为各接口地址，
// 非回环地址在前，回环地址在后；其余情况返回监听地址本身。
func advertisedAddrs(announce []string, local *net.UDPAddr) []types.EndpointAddress {
	if len(announce) > 0 {
		out := make([]types.EndpointAddress, 0, len(announce))
		for _, a := range announce {
			out = append(out, endpoint(a))
		}
		return out
	}
	if local == nil {
		return nil
	}
	if !local.IP.IsUnspecified() {
		return []types.EndpointAddress{endpoint(local.String())}
	}

	ifaddrs, err := interfaceAddrs()
	if err != nil {
		log.Debug("读取接口地址失败", "err", err)
	}
	port := strconv.Itoa(local.Port)
	v4only := local.IP.To4() != nil

	var ips []net.IP
	for _, a := range ifaddrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP
		if ip.IsLinkLocalUnicast() || ip.IsMulticast() || (v4only && ip.To4() == nil) {
			continue
		}
		ips = append(ips, ip)
	}
	// 非回环在前，同类中 IPv4 在前
	rank := func(ip net.IP) int {
		r := 0
		if ip.IsLoopback() {
			r += 2
		}
		if ip.To4() == nil {
			r++
		}
		return r
	}
	slices.SortStableFunc(ips, func(a, b net.IP) int { return rank(a) - rank(b) })

	out := make([]types.EndpointAddress, 0, len(ips))
	for _, ip := range ips {
		out = append(out, endpoint(net.JoinHostPort(ip.String(), port)))
	}
	out = slices.Compact(out)
	if len(out) == 0 {
		return []types.EndpointAddress{endpoint(local.String())}
	}
	return out
}

func endpoint(hostport string) types.EndpointAddress {
	return types.EndpointAddress(Scheme + "://" + hostport)
}

// validateAnnounce 校验公布地址为 host:port 且端口非零
func validateAnnounce(announce []string) error {
	for _, a := range announce {
		host, port, err := net.SplitHostPort(a)
		if err != nil || host == "" {
			return fmt.Errorf("quic: bad announce address %q", a)
		}
		if p, err := strconv.Atoi(port); err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("quic: bad announce port %q", a)
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
			return fmt.Errorf("quic: announce address %q is unspecified", a)
		}
	}
	return nil
}
