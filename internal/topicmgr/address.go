package topicmgr

import "maps"

// DefaultAddressPrefix is prepended to a topic name to form its endpoint
// address when no override is configured.
const DefaultAddressPrefix = "ipc:///tmp/underbots_zmq_"

// AddressBook maps topics to endpoint addresses.
type AddressBook struct {
	prefix    string
	overrides map[string]string
}

// NewAddressBook creates an address book. An empty prefix selects
// DefaultAddressPrefix.
func NewAddressBook(prefix string, overrides map[string]string) *AddressBook {
	if prefix == "" {
		prefix = DefaultAddressPrefix
	}
	return &AddressBook{
		prefix:    prefix,
		overrides: maps.Clone(overrides),
	}
}

// Resolve returns the address for topic: its override if one exists,
// otherwise prefix+topic.
func (b *AddressBook) Resolve(topic string) string {
	if addr, ok := b.overrides[topic]; ok {
		return addr
	}
	return b.prefix + topic
}

// Prefix returns the prefix used for topics without an override.
func (b *AddressBook) Prefix() string {
	return b.prefix
}
