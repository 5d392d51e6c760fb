// Package chat composes the inbound EventSub transport and the outbound
// IRC transport into one duplex chat client.
//
// The client owns the state the two transports share:
//   - The channel roster: IRC joins it after every authentication,
//     EventSub resubscribes it after every welcome
//   - The credential store, read at the moment of action so a refreshed
//     token reaches the next PASS line and the next Helix request
//   - The auth-refresh hook, serialized so simultaneous rejections
//     trigger a single refresh
//
// Each transport keeps its own backoff and reconnects on its own: an
// inbound outage never touches the outbound connection, and vice versa.
package chat
