package gharchive

import "encoding/json"

// EventEnvelope is the outer event format GH Archive stores per line.
// Only the fields the distiller needs are decoded; Payload stays raw so
// type-specific extras can be pulled out lazily.
//
// CreatedAt is kept as the source's ISO-8601 string and never reparsed:
// the distilled record passes it through verbatim.
type EventEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     Actor           `json:"actor"`
	Repo      Repo            `json:"repo"`
	Org       Org             `json:"org"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

// Actor is the user who triggered the event
type Actor struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Repo is the repository the event occurred in
type Repo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"` // owner/name
}

// Org is the organization owning the repository, when present
type Org struct {
	Login string `json:"login"`
}
