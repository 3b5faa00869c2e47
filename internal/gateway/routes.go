package gateway

import (
	"github.com/nikhilbhutani/crmgateway/internal/messaging"
	"github.com/nikhilbhutani/crmgateway/internal/store"
)

// Routes registers every resource family the gateway serves.
func Routes(repo store.Repository, sender messaging.Sender, pub Publisher) *Registry {
	if pub == nil {
		pub = noopPublisher{}
	}

	r := NewRegistry()
	r.Register("contacts", NewContacts(repo, pub),
		"GET /contacts", "POST /contacts",
		"GET /contacts/{id}", "PUT /contacts/{id}", "DELETE /contacts/{id}")
	r.Register("conversations", NewConversations(repo, sender, pub),
		"GET /conversations", "GET /conversations/{id}",
		"GET /conversations/{id}/messages", "POST /conversations/{id}/messages")
	r.Register("messages", NewMessages(repo, sender, pub),
		"POST /messages/send")
	r.Register("deals", NewDeals(repo, pub),
		"GET /deals", "POST /deals",
		"GET /deals/{id}", "PUT /deals/{id}", "PATCH /deals/{id}")
	r.Register("tasks", NewTasks(repo, pub),
		"GET /tasks", "POST /tasks", "PUT /tasks/{id}")
	r.Register("webhooks", NewWebhooks(repo),
		"GET /webhooks", "DELETE /webhooks?id={id}", "DELETE /webhooks/{id}")
	return r
}
