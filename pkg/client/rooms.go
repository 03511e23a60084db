package client

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// RoomSummary is a room and its member count.
type RoomSummary struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

// RoomList is the response of GET /api/v1/rooms.
type RoomList struct {
	Rooms       []RoomSummary `json:"rooms"`
	Connections int           `json:"connections"`
}

// Member is one connection in a room.
type Member struct {
	ID       string `json:"id"`
	Color    string `json:"color"`
	Username string `json:"username"`
}

// RoomDetail lists the members of one room.
type RoomDetail struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

// Rooms lists every room the hub knows.
func (c *Client) Rooms() (*RoomList, error) {
	var list RoomList
	if err := c.get("/api/v1/rooms", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Room returns the members of roomID.
func (c *Client) Room(roomID string) (*RoomDetail, error) {
	var detail RoomDetail
	if err := c.get("/api/v1/rooms/"+url.PathEscape(roomID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) get(path string, v any) error {
	resp, err := c.httpClient.Get(c.server + path)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
