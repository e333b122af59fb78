// Package shuffle defines the messages exchanged between pipeline stages and
// the Partition Router that decides which reducer receives each of them.
//
// A Message is either data, routed by hashing its key, or control, routed
// to an explicit target partition. Control messages always sort before data
// within a partition, so a reducer observes every control message addressed
// to it before its first data group.
package shuffle

import (
	"strings"
)

// Kind discriminates control messages from data messages.
type Kind uint8

const (
	KindControl Kind = iota
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Broadcast is the target of a control record that must be fanned out to
// every partition of the next stage.
const Broadcast = -1

// Message is the unit of shuffle. For control messages Key holds the tag
// (the meaning of the payload) and Target the destination partition.
type Message struct {
	Kind   Kind
	Target int
	Key    string
	Value  string
}

// Data builds an ordinary hash-routed message.
func Data(key, value string) Message {
	return Message{Kind: KindData, Key: key, Value: value}
}

// Control builds a message delivered to partition target.
func Control(target int, tag, payload string) Message {
	return Message{Kind: KindControl, Target: target, Key: tag, Value: payload}
}

func (m Message) IsControl() bool {
	return m.Kind == KindControl
}

// KeyCompare orders the data keys of one stage.
type KeyCompare func(a, b string) int

// Compare orders messages within a partition: all control messages first
// (by tag, then target), then data messages by keyCompare. A nil keyCompare
// falls back to byte-wise ordering.
func Compare(a, b Message, keyCompare KeyCompare) int {
	if a.Kind != b.Kind {
		if a.Kind == KindControl {
			return -1
		}
		return 1
	}
	if a.Kind == KindControl {
		if c := strings.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return a.Target - b.Target
	}
	if keyCompare == nil {
		return strings.Compare(a.Key, b.Key)
	}
	return keyCompare(a.Key, b.Key)
}

// SameGroup reports whether two adjacent sorted messages belong to the same
// reduce group.
func SameGroup(a, b Message, keyCompare KeyCompare) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == KindControl || keyCompare == nil {
		return a.Key == b.Key
	}
	return keyCompare(a.Key, b.Key) == 0
}
