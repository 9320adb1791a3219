// Package messaging pushes visitor events to connected websocket clients.
package messaging

// Publisher delivers a payload to every connection of one visitor.
type Publisher interface {
	Publish(visitorID string, payload any) int
}
