package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"borerelay/pkg/validation"
)

// Outbound relay event names
const (
	EventBan            = "command:ban"
	EventUnban          = "command:unban"
	EventMute           = "command:mute"
	EventUnmute         = "command:unmute"
	EventSetLegend      = "command:setLegend"
	EventRemoveLegend   = "command:removeLegend"
	EventSetMod         = "command:setMod"
	EventRemoveMod      = "command:removeMod"
	EventChangePassword = "command:changePassword"
	EventResetAllVip    = "command:resetAllVip"
)

// Inbound relay event names
const (
	ActionBan            = "action:ban"
	ActionUnban          = "action:unban"
	ActionMute           = "action:mute"
	ActionUnmute         = "action:unmute"
	ActionSetMod         = "action:setMod"
	ActionSetLegend      = "action:setLegend"
	ActionChangePassword = "action:changePassword"

	SyncPlayers = "sync:players"
	SyncBans    = "sync:bans"
	SyncMutes   = "sync:mutes"
	SyncStats   = "sync:stats"
	SyncRecs    = "sync:recs"
)

var syncEvents = map[string]struct{}{
	SyncPlayers: {}, SyncBans: {}, SyncMutes: {}, SyncStats: {}, SyncRecs: {},
}

// IsSyncEvent reports whether name is one of the accepted sync events.
func IsSyncEvent(name string) bool {
	_, ok := syncEvents[name]
	return ok
}

// IsActionEvent reports whether name carries the action prefix. Whether the
// action is known is decided by DecodeAction.
func IsActionEvent(name string) bool {
	return strings.HasPrefix(name, "action:")
}

// Command is one outbound instruction for the game process. Every variant
// has a fixed payload schema.
type Command interface {
	EventName() string
	Validate() error
}

type BanCommand struct {
	Name     string    `json:"name"`
	BannedBy string    `json:"bannedBy"`
	Reason   string    `json:"reason"`
	Conn     string    `json:"conn"`
	IPv4     string    `json:"ipv4"`
	Auth     string    `json:"auth"`
	Time     time.Time `json:"time"`
	Room     int       `json:"room"`
}

func (BanCommand) EventName() string { return EventBan }

func (c BanCommand) Validate() error {
	return validateSanction(c.Name, c.Reason, c.Conn, c.IPv4, c.Time)
}

type UnbanCommand struct {
	ID int64 `json:"id"`
}

func (UnbanCommand) EventName() string { return EventUnban }
func (c UnbanCommand) Validate() error { return validateID("id", c.ID) }

type MuteCommand struct {
	Name    string    `json:"name"`
	MutedBy string    `json:"mutedBy"`
	Reason  string    `json:"reason"`
	Conn    string    `json:"conn"`
	IPv4    string    `json:"ipv4"`
	Auth    string    `json:"auth"`
	Time    time.Time `json:"time"`
	Room    int       `json:"room"`
}

func (MuteCommand) EventName() string { return EventMute }

func (c MuteCommand) Validate() error {
	return validateSanction(c.Name, c.Reason, c.Conn, c.IPv4, c.Time)
}

type UnmuteCommand struct {
	ID int64 `json:"id"`
}

func (UnmuteCommand) EventName() string { return EventUnmute }
func (c UnmuteCommand) Validate() error { return validateID("id", c.ID) }

type SetLegendCommand struct {
	PlayerID       int64     `json:"playerId"`
	VipLevel       int       `json:"vipLevel"`
	ExpirationDate time.Time `json:"expirationDate"`
}

func (SetLegendCommand) EventName() string { return EventSetLegend }

func (c SetLegendCommand) Validate() error {
	if err := validateID("playerId", c.PlayerID); err != nil {
		return err
	}
	if err := validation.ValidateVipLevel(c.VipLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if c.ExpirationDate.IsZero() {
		return fmt.Errorf("%w: expirationDate is required", ErrInvalidPayload)
	}
	return nil
}

type RemoveLegendCommand struct {
	PlayerID int64 `json:"playerId"`
}

func (RemoveLegendCommand) EventName() string { return EventRemoveLegend }
func (c RemoveLegendCommand) Validate() error { return validateID("playerId", c.PlayerID) }

type SetModCommand struct {
	PlayerID int64 `json:"playerId"`
	Rooms    []int `json:"rooms"`
}

func (SetModCommand) EventName() string { return EventSetMod }

func (c SetModCommand) Validate() error {
	if err := validateID("playerId", c.PlayerID); err != nil {
		return err
	}
	if err := validation.ValidateRooms(c.Rooms); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

type RemoveModCommand struct {
	PlayerID int64 `json:"playerId"`
}

func (RemoveModCommand) EventName() string { return EventRemoveMod }
func (c RemoveModCommand) Validate() error { return validateID("playerId", c.PlayerID) }

type ChangePasswordCommand struct {
	PlayerID       int64  `json:"playerId"`
	HashedPassword string `json:"hashedPassword"`
}

func (ChangePasswordCommand) EventName() string { return EventChangePassword }

func (c ChangePasswordCommand) Validate() error {
	if err := validateID("playerId", c.PlayerID); err != nil {
		return err
	}
	if c.HashedPassword == "" {
		return fmt.Errorf("%w: hashedPassword is required", ErrInvalidPayload)
	}
	return nil
}

type ResetAllVipCommand struct{}

func (ResetAllVipCommand) EventName() string { return EventResetAllVip }
func (ResetAllVipCommand) Validate() error   { return nil }

func validateID(field string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidPayload, field)
	}
	return nil
}

func validateSanction(name, reason, conn, ipv4 string, at time.Time) error {
	checks := []error{
		validation.ValidatePlayerName(name),
		validation.ValidateReason(reason),
		validation.ValidateConn(conn),
		validation.ValidateIPv4(ipv4),
	}
	if at.IsZero() {
		checks = append(checks, errors.New("time is required"))
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return nil
}

// toggle payloads may carry action:"remove" to revoke instead of grant
type roleToggle struct {
	Action string `json:"action"`
}

// DecodeAction turns an inbound action event into the command that will be
// broadcast. Missing sanction timestamps default to now. Unknown names yield
// ErrUnknownEvent; malformed or invalid payloads yield ErrInvalidPayload.
func DecodeAction(event string, data json.RawMessage, now time.Time) (Command, error) {
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	var cmd Command
	switch event {
	case ActionBan:
		var c BanCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		if c.Time.IsZero() {
			c.Time = now.UTC()
		}
		cmd = c
	case ActionUnban:
		var c UnbanCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case ActionMute:
		var c MuteCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		if c.Time.IsZero() {
			c.Time = now.UTC()
		}
		cmd = c
	case ActionUnmute:
		var c UnmuteCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case ActionSetMod:
		var toggle roleToggle
		if err := decode(data, &toggle); err != nil {
			return nil, err
		}
		if toggle.Action == "remove" {
			var c RemoveModCommand
			if err := decode(data, &c); err != nil {
				return nil, err
			}
			cmd = c
			break
		}
		var c SetModCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case ActionSetLegend:
		var toggle roleToggle
		if err := decode(data, &toggle); err != nil {
			return nil, err
		}
		if toggle.Action == "remove" {
			var c RemoveLegendCommand
			if err := decode(data, &c); err != nil {
				return nil, err
			}
			cmd = c
			break
		}
		var c SetLegendCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		cmd = c
	case ActionChangePassword:
		var c ChangePasswordCommand
		if err := decode(data, &c); err != nil {
			return nil, err
		}
		cmd = c
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
