package dto

type CreateRoomRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

type CreateRoomResponse struct {
	Success  bool   `json:"success"`
	RoomCode string `json:"roomCode"`
}
