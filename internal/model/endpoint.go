package model

// Endpoint is one gateway session as reported by the gateway.
type Endpoint struct {
	Name  string
	State string
	Owner string
}

func (e Endpoint) Connected() bool {
	return e.State == "open" || e.State == "connected"
}

// EndpointRecord is the record store's entry for a known endpoint.
type EndpointRecord struct {
	Name       string
	OwnerPhone string
}

type Group struct {
	ID   string
	Name string
}
