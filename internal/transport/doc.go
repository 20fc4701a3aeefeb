// Package transport provides the sockets underneath the bus: a publisher
// that binds an address and fans frames out to connected subscribers, and
// a subscriber that connects to an address and queues what it receives.
//
// Two address schemes are supported:
//
//	ipc://<path>     unix domain stream socket, frames are varint length-prefixed
//	inproc://<name>  in-process channel shared by sockets of one Factory
//
// Every socket carries a Policy. A bounded policy queues up to Depth frames
// and drops new frames when full; a conflating policy keeps only the newest
// frame. Sends never block.
package transport
