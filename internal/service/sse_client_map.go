package service

import (
	"sync"
)

func NewSSEClientMap[T any]() *SSEClientMap[T] {
	return &SSEClientMap[T]{
		clients: make(map[string]chan T),
	}
}

// SSEClientMap fans run output or status updates out to every
// connected SSE client.
type SSEClientMap[T any] struct {
	m       sync.Mutex
	clients map[string]chan T
}

func (cm *SSEClientMap[T]) AddClient(uid string) chan T {
	cm.m.Lock()
	defer cm.m.Unlock()
	ch := make(chan T, 16)
	cm.clients[uid] = ch
	return ch
}

func (cm *SSEClientMap[T]) RemoveClient(uid string) {
	cm.m.Lock()
	defer cm.m.Unlock()
	if ch, ok := cm.clients[uid]; ok {
		close(ch)
		delete(cm.clients, uid)
	}
}

func (cm *SSEClientMap[T]) SendToClients(message T) {
	cm.m.Lock()
	defer cm.m.Unlock()
	for i := range cm.clients {
		// drop the message for a client that cannot keep up rather
		// than stall the run's output pump
		select {
		case cm.clients[i] <- message:
		default:
		}
	}
}
