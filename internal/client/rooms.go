package client

import (
	"context"
	"net/url"
	"strconv"

	"github.com/mcoot/coursebattle/internal/api/request"
	"github.com/mcoot/coursebattle/internal/api/response"
	"github.com/mcoot/coursebattle/internal/model"
)

// HealthResult is the health endpoint response
type HealthResult struct {
	Status string `json:"status"`
}

func roomPath(roomID model.RoomID, suffix string) string {
	return "/api/v1/rooms/" + url.PathEscape(string(roomID)) + suffix
}

// Health checks the server
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	var result HealthResult
	if err := c.Get(ctx, "/api/v1/health", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateGuest creates a guest player and adopts its session token
func (c *Client) CreateGuest(ctx context.Context, displayName string) (*response.AuthResponse, error) {
	return c.authenticate(ctx, "/api/v1/players/guest", request.CreateGuestRequest{DisplayName: displayName})
}

// Register creates an account and adopts its session token
func (c *Client) Register(ctx context.Context, username, password, displayName string) (*response.AuthResponse, error) {
	return c.authenticate(ctx, "/api/v1/players/register", request.RegisterRequest{
		Username:    username,
		Password:    password,
		DisplayName: displayName,
	})
}

// Login signs in and adopts the session token
func (c *Client) Login(ctx context.Context, username, password string) (*response.AuthResponse, error) {
	return c.authenticate(ctx, "/api/v1/players/login", request.LoginRequest{Username: username, Password: password})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*response.AuthResponse, error) {
	var result response.AuthResponse
	if err := c.Post(ctx, path, body, &result); err != nil {
		return nil, err
	}
	c.SetToken(result.SessionToken)
	return &result, nil
}

// Logout invalidates the current session
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Post(ctx, "/api/v1/players/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Me returns the signed-in player
func (c *Client) Me(ctx context.Context) (*response.Player, error) {
	var result response.Player
	if err := c.Get(ctx, "/api/v1/players/me", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateRoom creates a room owned by the caller
func (c *Client) CreateRoom(ctx context.Context, req request.CreateRoomRequest) (*model.Room, error) {
	var result response.Room
	if err := c.Post(ctx, "/api/v1/rooms", req, &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// JoinRoom joins the room with the given code
func (c *Client) JoinRoom(ctx context.Context, code, displayName string) (*model.Room, error) {
	var result response.Room
	if err := c.Post(ctx, "/api/v1/rooms/join", request.JoinRoomRequest{Code: code, DisplayName: displayName}, &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// ListRooms returns rooms the caller administers or belongs to
func (c *Client) ListRooms(ctx context.Context) ([]*model.Room, error) {
	var result []response.Room
	if err := c.Get(ctx, "/api/v1/rooms", &result); err != nil {
		return nil, err
	}
	rooms := make([]*model.Room, len(result))
	for i, r := range result {
		rooms[i] = r.ToModel()
	}
	return rooms, nil
}

// GetRoom fetches one room
func (c *Client) GetRoom(ctx context.Context, roomID model.RoomID) (*model.Room, error) {
	var result response.Room
	if err := c.Get(ctx, roomPath(roomID, ""), &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// DeleteRoom deletes a room
func (c *Client) DeleteRoom(ctx context.Context, roomID model.RoomID) error {
	return c.Delete(ctx, roomPath(roomID, ""))
}

// StartRoom starts a room
func (c *Client) StartRoom(ctx context.Context, roomID model.RoomID) (*model.Room, error) {
	var result response.Room
	if err := c.Post(ctx, roomPath(roomID, "/start"), nil, &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// FinishRoom finishes a room and returns the ranking
func (c *Client) FinishRoom(ctx context.Context, roomID model.RoomID) (*response.FinishResult, error) {
	var result response.FinishResult
	if err := c.Post(ctx, roomPath(roomID, "/finish"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Rename changes the caller's display name in a room
func (c *Client) Rename(ctx context.Context, roomID model.RoomID, displayName string) (*model.Member, error) {
	var result response.Member
	if err := c.Patch(ctx, roomPath(roomID, "/name"), request.RenameRequest{DisplayName: displayName}, &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// GetMembers returns the room's memberships in join order
func (c *Client) GetMembers(ctx context.Context, roomID model.RoomID) ([]*model.Member, error) {
	var result []response.Member
	if err := c.Get(ctx, roomPath(roomID, "/members"), &result); err != nil {
		return nil, err
	}
	members := make([]*model.Member, len(result))
	for i, m := range result {
		members[i] = m.ToModel()
	}
	return members, nil
}

// UpsertProgress records the caller's snapshot and score in a room
func (c *Client) UpsertProgress(ctx context.Context, roomID model.RoomID, snapshot model.Snapshot, score int) (*model.Member, error) {
	var result response.Member
	if err := c.Put(ctx, roomPath(roomID, "/progress"), request.ProgressRequest{Snapshot: snapshot, Score: score}, &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// SendMessage posts a chat message
func (c *Client) SendMessage(ctx context.Context, roomID model.RoomID, content string) (*model.ChatMessage, error) {
	var result response.ChatMessage
	if err := c.Post(ctx, roomPath(roomID, "/messages"), request.SendMessageRequest{Content: content}, &result); err != nil {
		return nil, err
	}
	return result.ToModel(), nil
}

// Messages returns up to limit of the latest messages, oldest first. A
// non-positive limit uses the server default.
func (c *Client) Messages(ctx context.Context, roomID model.RoomID, limit int) ([]*model.ChatMessage, error) {
	path := roomPath(roomID, "/messages")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var result []response.ChatMessage
	if err := c.Get(ctx, path, &result); err != nil {
		return nil, err
	}
	messages := make([]*model.ChatMessage, len(result))
	for i, m := range result {
		messages[i] = m.ToModel()
	}
	return messages, nil
}

// Profile returns a player's win/loss record; "me" means the caller
func (c *Client) Profile(ctx context.Context, playerID model.PlayerID) (*response.Profile, error) {
	var result response.Profile
	if err := c.Get(ctx, "/api/v1/profiles/"+url.PathEscape(string(playerID)), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
