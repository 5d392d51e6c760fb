// Package eventsub implements the inbound chat transport.
//
// The transport:
//   - Maintains one EventSub WebSocket session against Twitch
//   - Parses the envelope into a closed set of message variants
//   - Watches the keepalive interval and force-closes silent connections
//   - Follows session_reconnect URLs without a receive gap
//   - Redials unplanned closes with exponential backoff
package eventsub
