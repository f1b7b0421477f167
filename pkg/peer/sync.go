package peer

import (
	"bytes"
	"fmt"

	"github.com/pzverkov/bolt8/pkg/crypto"
)

// SyncState is the phase of the initial gossip sync toward a peer.
type SyncState int

const (
	// NoSyncRequested means the peer did not ask for an initial dump.
	NoSyncRequested SyncState = iota
	// ChannelsSyncing means channels up to Channel have been sent.
	ChannelsSyncing
	// NodesSyncing means channels are done and nodes up to Node have been sent.
	NodesSyncing
)

func (s SyncState) String() string {
	switch s {
	case NoSyncRequested:
		return "NoSyncRequested"
	case ChannelsSyncing:
		return "ChannelsSyncing"
	case NodesSyncing:
		return "NodesSyncing"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// SyncStatus is the sync cursor of one peer.
type SyncStatus struct {
	State   SyncState
	Channel uint64 // short channel id cursor
	Node    crypto.PublicKey
}

// ShouldForwardChannel reports whether a live announcement for scid should
// be forwarded now. Channels still ahead of the cursor will be sent by the
// sync itself.
func (s SyncStatus) ShouldForwardChannel(scid uint64) bool {
	switch s.State {
	case ChannelsSyncing:
		return s.Channel < scid
	default:
		return true
	}
}

// ShouldForwardNode is ShouldForwardChannel for node announcements.
func (s SyncStatus) ShouldForwardNode(node crypto.PublicKey) bool {
	switch s.State {
	case ChannelsSyncing:
		return false
	case NodesSyncing:
		return bytes.Compare(s.Node[:], node[:]) < 0
	default:
		return true
	}
}

func (s SyncStatus) String() string {
	switch s.State {
	case ChannelsSyncing:
		return fmt.Sprintf("ChannelsSyncing(%d)", s.Channel)
	case NodesSyncing:
		return fmt.Sprintf("NodesSyncing(%s)", s.Node)
	default:
		return s.State.String()
	}
}

// initialRoutingSync is feature bit 3 of the init message.
const initialRoutingSync = 3

// hasFeature reports whether bit is set in a big-endian feature vector.
func hasFeature(features []byte, bit int) bool {
	i := len(features) - 1 - bit/8
	if i < 0 {
		return false
	}
	return features[i]&(1<<(bit%8)) != 0
}
