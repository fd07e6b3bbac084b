// Package reactor implements the platform readiness source (epoll on
// Linux) behind api.Reactor. Poll groups register sockets here and are
// woken on read/write/error readiness; everything above this layer is
// platform-neutral.
package reactor
