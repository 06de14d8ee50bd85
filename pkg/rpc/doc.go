// Package rpc is the peer wire protocol: the Request/Response envelope
// described in spec.md §6, and a framed, length-prefixed encoding/gob
// transport over one persistent TLS connection per peer.
//
// The teacher's own peer transport (pkg/client) is gRPC against a
// generated api/proto package that was never retrieved with this
// codebase, and no .proto files exist anywhere in the retrieval pack, so
// grpc/protobuf are dropped in favor of this hand-framed protocol (see
// DESIGN.md). Framing and TLS follow the teacher's mTLS conventions from
// pkg/security; only the wire format changes.
package rpc
