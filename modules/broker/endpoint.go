package broker

import (
	"strconv"
	"strings"
)

// Topology is the broadcast scope of an endpoint.
type Topology int

const (
	// TopologySingleton connections only talk to the server.
	TopologySingleton Topology = iota
	// TopologyRoom connections share a room group.
	TopologyRoom
	// TopologyPeer connections share a group with one interlocutor.
	TopologyPeer
)

// String returns the topology name.
func (t Topology) String() string {
	switch t {
	case TopologyRoom:
		return "room"
	case TopologyPeer:
		return "peer"
	default:
		return "singleton"
	}
}

// Mode selects how inbound frames are handled.
type Mode int

const (
	// ModeBroadcast routes frames to the connection's group.
	ModeBroadcast Mode = iota
	// ModeHistory answers history page requests.
	ModeHistory
	// ModeValidation answers form validation requests.
	ModeValidation
)

// Endpoint describes the behaviour of one websocket route.
type Endpoint struct {
	Name     string
	Topology Topology
	Mode     Mode
	// RequiresIdentity endpoints need a bearer token at handshake.
	RequiresIdentity bool
	// Stamp adds a server timestamp to JSON payloads.
	Stamp bool
	// DiscardEmpty drops payloads whose content is the empty string.
	DiscardEmpty bool
	// Persist stores payloads as room messages before delivery.
	Persist bool
	// Presence broadcasts an Offline status when a member disconnects.
	Presence bool
}

// The endpoints served by the broker.
var (
	ChatMessage = Endpoint{
		Name:             "chat-message",
		Topology:         TopologyRoom,
		Mode:             ModeBroadcast,
		RequiresIdentity: true,
		Stamp:            true,
		DiscardEmpty:     true,
		Persist:          true,
	}
	MemberStatus = Endpoint{
		Name:             "member-status",
		Topology:         TopologyRoom,
		Mode:             ModeBroadcast,
		RequiresIdentity: true,
		Presence:         true,
	}
	ClientSync = Endpoint{
		Name:             "client-sync",
		Topology:         TopologyRoom,
		Mode:             ModeBroadcast,
		RequiresIdentity: true,
	}
	DirectMessage = Endpoint{
		Name:             "direct-message",
		Topology:         TopologyPeer,
		Mode:             ModeBroadcast,
		RequiresIdentity: true,
		Stamp:            true,
		DiscardEmpty:     true,
	}
	ChatHistory = Endpoint{
		Name:             "chat-history",
		Topology:         TopologySingleton,
		Mode:             ModeHistory,
		RequiresIdentity: true,
	}
	FormValidation = Endpoint{
		Name:     "form-validation",
		Topology: TopologySingleton,
		Mode:     ModeValidation,
	}
)

// Endpoints lists every endpoint in route order.
func Endpoints() []Endpoint {
	return []Endpoint{ChatMessage, MemberStatus, ClientSync, DirectMessage, ChatHistory, FormValidation}
}

// GroupKey identifies a topology group.
type GroupKey struct {
	Endpoint string
	Scope    string
}

// RoomGroup returns the group key of a room endpoint.
func RoomGroup(endpoint, roomID string) GroupKey {
	return GroupKey{Endpoint: endpoint, Scope: "room:" + roomID}
}

// PeerGroup returns the group key shared by users a and b, in either order.
func PeerGroup(endpoint string, a, b int64) GroupKey {
	if a > b {
		a, b = b, a
	}
	return GroupKey{
		Endpoint: endpoint,
		Scope:    "peer:" + strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10),
	}
}

// SingletonGroup returns a group key private to one connection.
func SingletonGroup(endpoint, connID string) GroupKey {
	return GroupKey{Endpoint: endpoint, Scope: "conn:" + connID}
}

// RoomID returns the room id of a room group key.
func (k GroupKey) RoomID() (string, bool) {
	roomID, ok := strings.CutPrefix(k.Scope, "room:")
	if !ok || roomID == "" {
		return "", false
	}
	return roomID, true
}
