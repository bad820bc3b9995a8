// Package protocol implements the binary wire protocol reactor uses to mirror
// a live tree to remote viewers.
//
// The server sends one FrameSnapshot with the full tree of the mirrored root,
// then a FrameMutations batch after every settle that changed the tree.
// Viewers rebuild the tree with a Replica.
//
// # Wire Format
//
// All messages are framed with a 5-byte header:
//
//	┌─────────────┬───────────────────────────────┐
//	│ Frame Type  │ Payload Length                │
//	│ (1 byte)    │ (4 bytes, big-endian)         │
//	└─────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameSnapshot (0x01): Sequence number and node descriptor of the root
//   - FrameMutations (0x02): Sequenced batch of mutations
//   - FrameControl (0x03): Ping, pong, close
//   - FrameError (0x04): Coded error message
//
// # Encoding
//
//   - Varint: Compact encoding for IDs, counts and lengths (protobuf-style)
//   - Length-prefixed: Strings prefixed with varint length
//   - Big-endian: The frame length
//
// # Mutations
//
// Nodes are addressed by their document ID. Insert and Replace carry the
// full descriptor of the inserted subtree because mutations made to
// detached nodes are not streamed:
//
//	Insert:  [0x01][Parent][Ref][Tree]
//	Remove:  [0x02][Parent][Target]
//	Replace: [0x03][Parent][Old][Tree]
//	SetText: [0x04][Target][Value]
//
// # Limits
//
// Decoding rejects strings larger than MaxAllocation, collections larger than
// MaxCollectionCount and trees deeper than MaxTreeDepth.
package protocol
