package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "relay"

// Topics builds the controller's topic names under a common prefix.
//
//	topics := mqtt.NewTopics("relay")
//	topics.Trigger("open-editor") // "relay/trigger/open-editor"
type Topics struct {
	Prefix string
}

// NewTopics returns topic builders rooted at prefix. Trailing slashes are
// trimmed and an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Trigger is the command topic for one binding. Publishing anything to it
// activates the binding.
//
// Example: relay/trigger/open-editor
func (t Topics) Trigger(binding string) string {
	return t.root() + "/trigger/" + binding
}

// AllTriggers matches every binding's command topic.
//
// Pattern: relay/trigger/+
func (t Topics) AllTriggers() string {
	return t.root() + "/trigger/+"
}

// BindingFromTrigger extracts the binding name from a trigger topic.
func (t Topics) BindingFromTrigger(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.root()+"/trigger/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// Event is where the controller announces what it did.
//
// Example: relay/event/trigger
func (t Topics) Event(kind string) string {
	return t.root() + "/event/" + kind
}

// AllEvents matches every event topic.
//
// Pattern: relay/event/+
func (t Topics) AllEvents() string {
	return t.root() + "/event/+"
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
//
// Example: relay/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// BindingsStatus is the retained summary of the loaded bindings table.
//
// Example: relay/system/bindings
func (t Topics) BindingsStatus() string {
	return t.root() + "/system/bindings"
}

// Validate accepts a topic or filter that lives under the prefix. A '#'
// may only close the filter and '+' must fill a whole level.
func (t Topics) Validate(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	root := t.root()
	if topic != root && !strings.HasPrefix(topic, root+"/") {
		return fmt.Errorf("%w: %q is outside %s/", ErrInvalidTopic, topic, root)
	}
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		switch {
		case level == "#" && i != len(levels)-1:
			return fmt.Errorf("%w: %q has # before the last level", ErrInvalidTopic, topic)
		case level != "#" && level != "+" && strings.ContainsAny(level, "#+"):
			return fmt.Errorf("%w: %q mixes a wildcard into a level", ErrInvalidTopic, topic)
		}
	}
	return nil
}
