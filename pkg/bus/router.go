package bus

import "sync"

// Router is a dispatch table from input and command names to handlers.
// Sessions embed it to implement handler registration.
type Router struct {
	mu       sync.RWMutex
	messages map[string]MessageHandler
	commands map[string]CommandHandler
}

func (r *Router) OnInboundMessage(input string, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = make(map[string]MessageHandler)
	}
	r.messages[input] = handler
}

func (r *Router) OnCommand(name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commands == nil {
		r.commands = make(map[string]CommandHandler)
	}
	r.commands[name] = handler
}

func (r *Router) MessageHandler(input string) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.messages[input]
	return handler, ok && handler != nil
}

func (r *Router) CommandHandler(name string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.commands[name]
	return handler, ok && handler != nil
}
