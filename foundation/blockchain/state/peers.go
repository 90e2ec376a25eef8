package state

import (
	"fmt"
	"net/http"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/peer"
)

// AddKnownPeer adds a peer to the known set. Returns true when the peer was
// not already known.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	return s.knownPeers.Add(pr)
}

// RemoveKnownPeer removes a peer from the known set.
func (s *State) RemoveKnownPeer(pr peer.Peer) {
	s.knownPeers.Remove(pr)
}

// NetSendPeerAnnounce tells the peer this node exists so it can add this
// host to its own known set.
func (s *State) NetSendPeerAnnounce(pr peer.Peer) error {
	s.evHandler("state: NetSendPeerAnnounce: started: %s", pr)
	defer s.evHandler("state: NetSendPeerAnnounce: completed: %s", pr)

	url := fmt.Sprintf("%s/peer/announce", fmt.Sprintf(baseURL, pr.Host))

	announce := peer.New(s.host)
	return send(http.MethodPost, url, announce, nil)
}
