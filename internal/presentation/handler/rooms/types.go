package rooms

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

type joinRoomResponse struct {
	RoomID string `json:"roomId"`
	TTL    int64  `json:"ttl"` // seconds until self-destruct
}

type ttlResponse struct {
	TTL int64 `json:"ttl"`
}
