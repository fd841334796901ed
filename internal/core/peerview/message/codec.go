package message

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dep2p/go-peerview/internal/core/peerview/bighash"
	"github.com/dep2p/go-peerview/pkg/types"
)

// ============================================================================
//                              XML 线格式
// ============================================================================

type hashXML struct {
	Value  string `xml:",chardata"`
	Radius string `xml:"radius,attr,omitempty"`
}

type paXML struct {
	PID       string   `xml:"PID"`
	Name      string   `xml:"Name,omitempty"`
	Endpoints []string `xml:"Endpoint"`
	Rdv       bool     `xml:"Rdv,omitempty"`
}

type advXML struct {
	Gen        string `xml:"adv_gen,attr,omitempty"`
	Expiration int64  `xml:"expiration,attr,omitempty"`
	PA         *paXML `xml:"PA"`
}

type addressRequestXML struct {
	XMLName    xml.Name `xml:"PeerviewAddressRequest"`
	TargetHash *hashXML `xml:"TargetHash"`
	PeerAdv    *advXML  `xml:"PeerAdv"`
}

type addressAssignXML struct {
	XMLName      xml.Name `xml:"PeerviewAddressAssign"`
	PeerID       string   `xml:"peer_id,attr"`
	InstanceMask string   `xml:"InstanceMask"`
	TargetHash   string   `xml:"TargetHash"`
}

type pingXML struct {
	XMLName    xml.Name `xml:"PeerviewPing"`
	AdvRequest bool     `xml:"adv_req,attr,omitempty"`
	SrcPeerID  string   `xml:"SrcPeerID"`
	DstPeerID  string   `xml:"DstPeerID,omitempty"`
	DstAddress string   `xml:"DstPeerAddress,omitempty"`
	DstAdvGen  string   `xml:"DstAdvGen,omitempty"`
}

type peerInfoXML struct {
	PeerID     string   `xml:"peer_id,attr"`
	Associates string   `xml:"associates,attr,omitempty"`
	AdvGen     string   `xml:"adv_gen,attr,omitempty"`
	TargetHash *hashXML `xml:"TargetHash"`
	PA         *paXML   `xml:"PA"`
}

type pongXML struct {
	XMLName      xml.Name      `xml:"PeerviewPong"`
	PeerID       string        `xml:"peer_id,attr"`
	RdvState     int           `xml:"rdv_state,attr"`
	Action       int           `xml:"pong_action,attr"`
	InstanceMask string        `xml:"InstanceMask"`
	TargetHash   *hashXML      `xml:"TargetHash"`
	Adv          *advXML       `xml:"Adv"`
	Members      []peerInfoXML `xml:"ClusterMember"`
	Partners     []peerInfoXML `xml:"Partner"`
	Candidates   []peerInfoXML `xml:"Candidate"`
}

// ============================================================================
//                              编码
// ============================================================================

// Encode 编码消息，返回元素名与 XML 消息体
func Encode(m Message) (string, []byte, error) {
	if m == nil {
		return "", nil, fmt.Errorf("%w: nil", ErrInvalidMessage)
	}
	if err := m.Validate(); err != nil {
		return "", nil, err
	}

	var doc any
	switch v := m.(type) {
	case *AddressRequest:
		doc = encodeAddressRequest(v)
	case *AddressAssign:
		doc = &addressAssignXML{
			PeerID:       string(v.PeerID),
			InstanceMask: v.InstanceMask.Hex(),
			TargetHash:   v.TargetHash.Hex(),
		}
	case *Ping:
		doc = &pingXML{
			AdvRequest: v.AdvRequest,
			SrcPeerID:  string(v.SrcPeerID),
			DstPeerID:  string(v.DstPeerID),
			DstAddress: string(v.DstAddress),
			DstAdvGen:  v.DstAdvGen,
		}
	case *Pong:
		doc = encodePong(v)
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnknownMessage, m)
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", m.Kind(), err)
	}
	return m.Kind().String(), body, nil
}

func encodeAddressRequest(m *AddressRequest) *addressRequestXML {
	doc := &addressRequestXML{
		PeerAdv: &advXML{
			Gen:        m.PeerAdvGen,
			Expiration: m.PeerAdvExp.Milliseconds(),
			PA:         encodePA(m.PeerAdv),
		},
	}
	if m.TargetHash != nil {
		doc.TargetHash = &hashXML{Value: m.TargetHash.Hex()}
		if m.TargetHashRadius != nil {
			doc.TargetHash.Radius = m.TargetHashRadius.Hex()
		}
	}
	return doc
}

func encodePong(m *Pong) *pongXML {
	doc := &pongXML{
		PeerID:       string(m.PeerID),
		RdvState:     int(m.RdvState),
		Action:       int(m.Action),
		InstanceMask: m.InstanceMask.Hex(),
		TargetHash:   &hashXML{Value: m.TargetHash.Hex(), Radius: m.TargetHashRadius.Hex()},
	}
	if m.PeerAdv != nil {
		doc.Adv = &advXML{
			Gen:        m.PeerAdvGen,
			Expiration: m.PeerAdvExp.Milliseconds(),
			PA:         encodePA(m.PeerAdv),
		}
	}
	doc.Members = encodeInfos(m.Associates, true)
	doc.Partners = encodeInfos(m.Partners, false)
	doc.Candidates = encodeInfos(m.Candidates, false)
	return doc
}

func encodeInfos(infos []PeerInfo, withCluster bool) []peerInfoXML {
	if len(infos) == 0 {
		return nil
	}
	out := make([]peerInfoXML, len(infos))
	for i, info := range infos {
		out[i] = peerInfoXML{
			PeerID:     string(info.PeerID),
			AdvGen:     info.AdvGen,
			TargetHash: &hashXML{Value: info.TargetHash.Hex(), Radius: info.TargetHashRadius.Hex()},
			PA:         encodePA(info.Adv),
		}
		if withCluster && info.Cluster >= 0 {
			out[i].Associates = strconv.Itoa(info.Cluster)
		}
	}
	return out
}

func encodePA(adv *types.PeerAdvertisement) *paXML {
	if adv == nil {
		return nil
	}
	pa := &paXML{PID: string(adv.PeerID), Name: adv.Name, Rdv: adv.Rendezvous}
	for _, ep := range adv.Endpoints {
		pa.Endpoints = append(pa.Endpoints, string(ep))
	}
	return pa
}

// ============================================================================
//                              解码
// ============================================================================

// Decode 按元素名解码消息体
//
// element 可以带或不带 "jxta:" 前缀。任何缺失或格式错误的
// 必填字段都返回 ErrInvalidMessage。
func Decode(element string, body []byte) (Message, error) {
	var (
		m   Message
		err error
	)
	switch normalize(element) {
	case "PeerviewAddressRequest":
		m, err = decodeAddressRequest(body)
	case "PeerviewAddressAssign":
		m, err = decodeAddressAssign(body)
	case "PeerviewPing":
		m, err = decodePing(body)
	case "PeerviewPong":
		m, err = decodePong(body)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, element)
	}
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func normalize(element string) string {
	if _, local, ok := strings.Cut(element, ":"); ok {
		return local
	}
	return element
}

func unmarshal(body []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = true
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func decodeAddressRequest(body []byte) (*AddressRequest, error) {
	var doc addressRequestXML
	if err := unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc.PeerAdv == nil {
		return nil, invalid("PeerAdv")
	}

	m := &AddressRequest{
		PeerAdv:    decodePA(doc.PeerAdv.PA),
		PeerAdvGen: doc.PeerAdv.Gen,
		PeerAdvExp: time.Duration(doc.PeerAdv.Expiration) * time.Millisecond,
	}
	if doc.TargetHash != nil {
		h, err := parseHash(doc.TargetHash.Value, "TargetHash")
		if err != nil {
			return nil, err
		}
		m.TargetHash = &h
		if doc.TargetHash.Radius != "" {
			r, err := parseHash(doc.TargetHash.Radius, "TargetHash.radius")
			if err != nil {
				return nil, err
			}
			m.TargetHashRadius = &r
		}
	}
	return m, nil
}

func decodeAddressAssign(body []byte) (*AddressAssign, error) {
	var doc addressAssignXML
	if err := unmarshal(body, &doc); err != nil {
		return nil, err
	}
	mask, err := parseHash(doc.InstanceMask, "InstanceMask")
	if err != nil {
		return nil, err
	}
	target, err := parseHash(doc.TargetHash, "TargetHash")
	if err != nil {
		return nil, err
	}
	return &AddressAssign{
		PeerID:       types.PeerID(strings.TrimSpace(doc.PeerID)),
		InstanceMask: mask,
		TargetHash:   target,
	}, nil
}

func decodePing(body []byte) (*Ping, error) {
	var doc pingXML
	if err := unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return &Ping{
		SrcPeerID:  types.PeerID(strings.TrimSpace(doc.SrcPeerID)),
		DstPeerID:  types.PeerID(strings.TrimSpace(doc.DstPeerID)),
		DstAddress: types.EndpointAddress(strings.TrimSpace(doc.DstAddress)),
		DstAdvGen:  strings.TrimSpace(doc.DstAdvGen),
		AdvRequest: doc.AdvRequest,
	}, nil
}

func decodePong(body []byte) (*Pong, error) {
	var doc pongXML
	if err := unmarshal(body, &doc); err != nil {
		return nil, err
	}
	if doc.RdvState < int(RdvStateRendezvous) || doc.RdvState > int(RdvStateDemoting) {
		return nil, invalid("rdv_state")
	}
	if doc.Action < int(PongInvite) || doc.Action > int(PongStatus) {
		return nil, invalid("pong_action")
	}
	mask, err := parseHash(doc.InstanceMask, "InstanceMask")
	if err != nil {
		return nil, err
	}
	if doc.TargetHash == nil {
		return nil, invalid("TargetHash")
	}
	target, err := parseHash(doc.TargetHash.Value, "TargetHash")
	if err != nil {
		return nil, err
	}
	radius, err := parseHash(doc.TargetHash.Radius, "TargetHash.radius")
	if err != nil {
		return nil, err
	}

	m := &Pong{
		PeerID:           types.PeerID(strings.TrimSpace(doc.PeerID)),
		RdvState:         RdvState(doc.RdvState),
		Action:           PongAction(doc.Action),
		InstanceMask:     mask,
		TargetHash:       target,
		TargetHashRadius: radius,
	}
	if doc.Adv != nil {
		m.PeerAdv = decodePA(doc.Adv.PA)
		if m.PeerAdv == nil {
			return nil, invalid("Adv.PA")
		}
		m.PeerAdvGen = doc.Adv.Gen
		m.PeerAdvExp = time.Duration(doc.Adv.Expiration) * time.Millisecond
		if m.PeerAdvExp < 0 {
			return nil, invalid("Adv.expiration")
		}
	}
	if m.Associates, err = decodeInfos(doc.Members, true); err != nil {
		return nil, err
	}
	if m.Partners, err = decodeInfos(doc.Partners, false); err != nil {
		return nil, err
	}
	if m.Candidates, err = decodeInfos(doc.Candidates, false); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInfos(in []peerInfoXML, withCluster bool) ([]PeerInfo, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]PeerInfo, 0, len(in))
	for _, x := range in {
		info := PeerInfo{
			PeerID:  types.PeerID(strings.TrimSpace(x.PeerID)),
			Cluster: -1,
			AdvGen:  x.AdvGen,
			Adv:     decodePA(x.PA),
		}
		if withCluster && x.Associates != "" {
			c, err := strconv.Atoi(x.Associates)
			if err != nil || c < 0 {
				return nil, invalid("ClusterMember.associates")
			}
			info.Cluster = c
		}
		if x.TargetHash != nil {
			h, err := parseHash(x.TargetHash.Value, "peer_info.TargetHash")
			if err != nil {
				return nil, err
			}
			info.TargetHash = h
			if x.TargetHash.Radius != "" {
				r, err := parseHash(x.TargetHash.Radius, "peer_info.TargetHash.radius")
				if err != nil {
					return nil, err
				}
				info.TargetHashRadius = r
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func decodePA(pa *paXML) *types.PeerAdvertisement {
	if pa == nil {
		return nil
	}
	adv := &types.PeerAdvertisement{
		PeerID:     types.PeerID(strings.TrimSpace(pa.PID)),
		Name:       pa.Name,
		Rendezvous: pa.Rdv,
	}
	for _, ep := range pa.Endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			adv.Endpoints = append(adv.Endpoints, types.EndpointAddress(ep))
		}
	}
	return adv
}

func parseHash(s, field string) (bighash.Hash, error) {
	h, err := bighash.ParseHex(s)
	if err != nil {
		return bighash.Zero, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, field, err)
	}
	return h, nil
}
