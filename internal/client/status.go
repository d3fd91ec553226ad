package client

import "fmt"

// ConnectionState is the lifecycle state of the room channel
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StatusKind classifies the user-facing status line
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusCreatingRoom
	StatusConnecting
	StatusConnected
	StatusInitialState
	StatusLiveUpdate
	StatusDisconnected
	StatusRoomNotFound
	StatusAbnormalClose
	StatusConnectionError
	StatusRoomCreationFailed
	StatusRoomCreationNetworkError
)

// Status is what the presentation layer shows to the user
type Status struct {
	Kind StatusKind
	Text string
	// Code is the close code for StatusAbnormalClose
	Code int
}

// Close codes the room server uses
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
)

func idleStatus() Status {
	return Status{Kind: StatusIdle, Text: "Click 'Create New Room' or enter a Room ID to start."}
}

func connectingStatus() Status {
	return Status{Kind: StatusConnecting, Text: "Connecting to room..."}
}

func creatingRoomStatus() Status {
	return Status{Kind: StatusCreatingRoom, Text: "Creating new room..."}
}

func connectedStatus(roomID string) Status {
	return Status{Kind: StatusConnected, Text: fmt.Sprintf("Connected to Room ID: %s. Start typing!", roomID)}
}

func initialStateStatus(roomID string) Status {
	return Status{Kind: StatusInitialState, Text: fmt.Sprintf("Connected to Room ID: %s. Initial code loaded from DB.", roomID)}
}

func liveUpdateStatus(roomID string) Status {
	return Status{Kind: StatusLiveUpdate, Text: fmt.Sprintf("Connected to Room ID: %s. Live changes received.", roomID)}
}

func connectionErrorStatus() Status {
	return Status{Kind: StatusConnectionError, Text: "WebSocket Error. Check backend console and connectivity."}
}

func roomCreationFailedStatus() Status {
	return Status{Kind: StatusRoomCreationFailed, Text: "Failed to create room. Check backend status."}
}

func roomCreationNetworkErrorStatus() Status {
	return Status{Kind: StatusRoomCreationNetworkError, Text: "Network error during room creation. Is the server running?"}
}

// closeStatus maps a close code to the status shown after the channel closes
func closeStatus(code int) Status {
	switch code {
	case CloseNormal:
		return Status{Kind: StatusDisconnected, Text: "Disconnected successfully.", Code: code}
	case ClosePolicyViolation:
		return Status{Kind: StatusRoomNotFound, Text: "Connection closed: Room does not exist. Please check the Room ID.", Code: code}
	default:
		return Status{Kind: StatusAbnormalClose, Text: fmt.Sprintf("Connection closed with error. Code: %d.", code), Code: code}
	}
}
