package engine

import (
	"errors"

	"bingohall/internal/players"
	"bingohall/internal/rooms"
)

var (
	ErrUnknownStake        = errors.New("unknown stake")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrSlotTaken           = errors.New("slot already taken")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWrongPhase          = errors.New("room is not accepting this action now")
	ErrAlreadyEnrolled     = errors.New("already enrolled in a room")
	ErrNotEnrolled         = errors.New("not enrolled in this room")
	ErrInvalidPattern      = errors.New("no winning pattern")
	ErrClaimInProgress     = errors.New("claim in progress, try later")
	ErrUnknownParticipant  = errors.New("unknown participant")
	ErrRoomQuarantined     = errors.New("room was reset after an inconsistency")
)

// Code maps an engine error to the stable code sent to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownStake):
		return "unknown_stake"
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrWrongPhase):
		return "room_locked"
	case errors.Is(err, ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrInvalidPattern):
		return "invalid_claim"
	case errors.Is(err, ErrClaimInProgress):
		return "claim_in_progress"
	case errors.Is(err, ErrUnknownParticipant), errors.Is(err, players.ErrNotFound):
		return "unknown_participant"
	case errors.Is(err, ErrRoomQuarantined):
		return "room_reset"
	case errors.Is(err, rooms.ErrUnavailable), errors.Is(err, players.ErrUnavailable):
		return "storage_unavailable"
	default:
		return "server_error"
	}
}

// Retryable reports whether the client may retry the same request later.
func Retryable(err error) bool {
	switch Code(err) {
	case "claim_in_progress", "storage_unavailable", "server_error", "room_reset":
		return true
	}
	return false
}
