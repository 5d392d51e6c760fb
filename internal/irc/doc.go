// Package irc implements the outbound chat transport.
//
// The transport:
//   - Maintains one IRC-over-WebSocket connection to Twitch chat
//   - Authenticates with PASS/NICK and requests the tags and commands caps
//   - Joins the configured channels under the join flood limit
//   - Drains the outgoing queue under the per-window message rate
//   - Answers server PINGs and recovers from auth rejection via token refresh
//   - Redials unplanned closes with exponential backoff
package irc
