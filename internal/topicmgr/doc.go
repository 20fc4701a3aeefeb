// Package topicmgr keeps track of the endpoints behind each topic.
//
// A Registry maps a topic to at most one publisher endpoint and at most one
// subscriber endpoint. Endpoints are bound lazily: the first publish on a
// topic binds its publisher, the first callback registration connects its
// subscriber. The address of an endpoint comes from an AddressBook, which
// applies per-topic overrides and otherwise appends the topic name to a
// prefix:
//
//	book := topicmgr.NewAddressBook("ipc:///tmp/underbots_zmq_", nil)
//	book.Resolve("world") // ipc:///tmp/underbots_zmq_world
//
// Each subscriber endpoint decodes to exactly one payload type and holds an
// ordered list of callbacks. Registering a second payload type for the same
// topic is a configuration error reported as a *TopicError.
package topicmgr
