package realtime

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	v1 "github.com/naval-1647/CodeMonitor/shared/contracts/realtime/v1"
)

var (
	// ErrInvalidRoomID is returned for empty room ids or ids containing a path separator.
	ErrInvalidRoomID = errors.New("invalid room id")
	errInvalidBase   = errors.New("invalid websocket base url")
)

// ChatEndpoint returns the single-user chat URL under base (ws, wss, http or https).
func ChatEndpoint(base string) (string, error) {
	return joinEndpoint(base, v1.ChatPath)
}

// RoomEndpoint returns the team room URL for roomID under base.
func RoomEndpoint(base, roomID string) (string, error) {
	id := strings.TrimSpace(roomID)
	if id == "" || strings.ContainsAny(id, "/?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return joinEndpoint(base, v1.TeamPathBase+id)
}

// RoomLink returns the shareable path for a room.
func RoomLink(roomID string) string {
	return "/team/" + url.PathEscape(strings.TrimSpace(roomID))
}

func joinEndpoint(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidBase, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme %q", errInvalidBase, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", errInvalidBase)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// withToken carries the credential as the token query parameter.
func withToken(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if token == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
