package clients

// Repo is the named client table.
type Repo interface {
	Upsert(client *Client) error
	Delete(name string) error
	Get(name string) (*Client, error)
	List() ([]*Client, error)
}
