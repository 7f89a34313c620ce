package domain

import "time"

// MaxRoomLifetime is the artifact ceiling: no room-scoped key may ever
// outlive creation time plus this duration.
const MaxRoomLifetime = 10 * time.Minute

// MaxMembers is the hard membership capacity of a room.
const MaxMembers = 2

// Room is the metadata view of a live room. Connected holds the admitted
// bearer tokens in insertion order.
type Room struct {
	ID        string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	Connected []string  `json:"connected"`
}

func (r *Room) IsMember(token string) bool {
	for _, t := range r.Connected {
		if t == token {
			return true
		}
	}
	return false
}

func (r *Room) IsFull() bool {
	return len(r.Connected) >= MaxMembers
}
