// Package eventbus carries classification events from the pipeline to
// side consumers such as the audit log.
package eventbus

// Publisher is the part of the bus the pipeline depends on.
type Publisher interface {
	PublishAsync(topic string, args ...interface{})
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishAsync(string, ...interface{}) {}
