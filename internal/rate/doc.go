// Package rate provides Redis-backed fixed-window counters used by the
// reference core to throttle refresh storms and session creation bursts.
//
// Window semantics: INCR plus EXPIRE on the first hit. Key layout:
//   - <prefix>:rr:<handle>           refresh attempts per session
//   - <prefix>:rc:<tenant>:<user>    session creations per user
package rate
