package clients

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo holds the client table loaded from configuration.
type InMemoryRepo struct {
	clients map[string]*Client
	lock    sync.RWMutex
}

// NewInMemoryRepo returns a repo seeded with clients. Invalid entries are rejected.
func NewInMemoryRepo(clients ...*Client) (*InMemoryRepo, error) {
	r := &InMemoryRepo{
		clients: make(map[string]*Client),
	}
	for _, c := range clients {
		if err := r.Upsert(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *InMemoryRepo) Upsert(client *Client) error {
	if client == nil {
		return ErrInvalidClient
	}
	if err := client.Validate(); err != nil {
		return errors.Wrap(err, "InMemoryRepo.Upsert")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	c := *client
	r.clients[client.Name] = &c
	return nil
}

func (r *InMemoryRepo) Delete(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.clients, name)
	return nil
}

// Get returns a copy of the named client or ErrClientNotFound.
func (r *InMemoryRepo) Get(name string) (*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, errors.Wrapf(ErrClientNotFound, "%q", name)
	}
	c := *client
	return &c, nil
}

// List returns copies of all clients ordered by name.
func (r *InMemoryRepo) List() ([]*Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*Client, 0, len(r.clients))
	for _, v := range r.clients {
		c := *v
		list = append(list, &c)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list, nil
}
