// Package chitchat implements cluster membership, anti-entropy and failure
// detection for the local node using the Scuttlebutt gossip protocol and a
// Phi-Accrual failure detector.
//
// A node's state is represented as a versioned set of key-value pairs which
// is gossiped to the other nodes in the cluster, so each node eventually
// converges on the same view of every peer's non-tombstoned state. The
// package has no knowledge of sockets: it is driven by a message-in /
// message-out contract (see Coordinator) so the transport loop, DNS
// resolution and CLI live outside the package.
package chitchat
