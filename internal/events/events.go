package events

import "time"

const TypeMasterComposed = "master.composed"

// MasterComposedEvent is broadcast after a master record is linked to a
// new composite image.
type MasterComposedEvent struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	MasterID string    `json:"master_id"`
	TraitIDs []string  `json:"trait_ids"`
	CID      string    `json:"cid"`
	Image    string    `json:"image"`
	At       time.Time `json:"at"`
}
