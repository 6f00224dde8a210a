package prompt

import "time"

// Record is one stored prompt awaiting scheduled redelivery.
type Record struct {
	ID            int64     `json:"id"`
	InsertedAt    time.Time `json:"insertedAt"`
	MessageRef    string    `json:"messageRef"`
	SourceContent string    `json:"sourceContent"`
	Prompt        string    `json:"prompt"`
}
