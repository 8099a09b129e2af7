// Package messaging defines interfaces for real-time communication.
package messaging

// Broadcaster defines the interface for managing SSE client connections and broadcasting messages.
type Broadcaster interface {
	AddClient() chan string
	RemoveClient(ch chan string)
	ConnectionCount() int
	Broadcast(event string, payload any) int
}
