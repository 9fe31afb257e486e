package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/duel-referee/internal/commitment"
)

// Protocol errors. Validation errors (bad stake, wrong caller) and protocol
// violations (duplicate commitment, invalid reveal, acting on a settled
// session) are distinct sentinels so callers can tell them apart for telemetry.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidStake        = errors.New("stake does not match the required amount")
	ErrAlreadyJoined       = errors.New("session already has a second player")
	ErrSelfJoin            = errors.New("creator cannot join their own session")
	ErrNotParticipant      = errors.New("caller is not a participant")
	ErrDuplicateCommitment = errors.New("commitment already recorded for caller")
	ErrNoCommitment        = errors.New("no commitment recorded for caller")
	ErrDuplicateReveal     = errors.New("reveal already recorded for caller")
	ErrInvalidReveal       = errors.New("reveal does not match the stored commitment")
	ErrNotYetExpirable     = errors.New("session deadline has not elapsed")
	ErrAlreadyTerminal     = errors.New("session is finished or expired")
	ErrNotJoinable         = errors.New("session is not waiting for a player")
	ErrNotInProgress       = errors.New("session is not in progress")
)

// NewSession builds a Waiting session for the creator. The caller supplies the
// allocated id and the stake attached to the request; requiredStake is the
// protocol constant both players must match exactly.
func NewSession(id uint64, gt GameType, creator string, stake, requiredStake uint64, rules RuleSet, now time.Time) (*Session, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, ErrNotParticipant
	}
	if stake != requiredStake {
		return nil, fmt.Errorf("%w: got %d want %d", ErrInvalidStake, stake, requiredStake)
	}
	r, ok := rules[gt]
	if !ok {
		return nil, fmt.Errorf("unsupported game type %q", gt)
	}
	data, err := r.Init()
	if err != nil {
		return nil, fmt.Errorf("init game data: %w", err)
	}
	return &Session{
		ID:           id,
		Type:         gt,
		Player1:      creator,
		State:        StateWaiting,
		Stake:        stake,
		Commitments:  make(map[string]commitment.Digest),
		Reveals:      make(map[string]Reveal),
		Round:        1,
		GameData:     data,
		CreatedAt:    now,
		LastActionAt: now,
	}, nil
}

// Join moves Waiting -> InProgress. The joiner must not be player1 and must
// attach exactly the session stake.
func (s *Session) Join(identity string, stake uint64, now time.Time) error {
	identity = strings.TrimSpace(identity)
	if s.State.Terminal() {
		return ErrAlreadyTerminal
	}
	if s.State != StateWaiting || s.Player2 != "" {
		return ErrAlreadyJoined
	}
	if identity == "" {
		return ErrNotParticipant
	}
	if identity == s.Player1 {
		return ErrSelfJoin
	}
	if stake != s.Stake {
		return fmt.Errorf("%w: got %d want %d", ErrInvalidStake, stake, s.Stake)
	}
	s.Player2 = identity
	s.State = StateInProgress
	s.LastActionAt = now
	return nil
}

// CommitMove records a commitment digest for a participant, once per round.
func (s *Session) CommitMove(identity string, d commitment.Digest, now time.Time) error {
	if s.State.Terminal() {
		return ErrAlreadyTerminal
	}
	if s.State != StateInProgress {
		return ErrNotInProgress
	}
	if !s.Participant(identity) {
		return ErrNotParticipant
	}
	if _, dup := s.Commitments[identity]; dup {
		return ErrDuplicateCommitment
	}
	if s.Commitments == nil {
		s.Commitments = make(map[string]commitment.Digest)
	}
	s.Commitments[identity] = d
	s.LastActionAt = now
	return nil
}

// RevealMove verifies a reveal against the stored commitment and records it.
// When both participants have revealed, the round is resolved through the
// game-type rules: the session either finishes or re-enters InProgress with
// fresh commitment slots and advanced game data.
//
// An invalid reveal is rejected without any state change.
func (s *Session) RevealMove(identity string, move, nonce uint64, rules RuleSet, now time.Time) (finished bool, err error) {
	if s.State.Terminal() {
		return false, ErrAlreadyTerminal
	}
	if s.State != StateInProgress {
		return false, ErrNotInProgress
	}
	if !s.Participant(identity) {
		return false, ErrNotParticipant
	}
	d, ok := s.Commitments[identity]
	if !ok {
		return false, ErrNoCommitment
	}
	if _, dup := s.Reveals[identity]; dup {
		return false, ErrDuplicateReveal
	}
	if !commitment.Verify(d, move, nonce, identity) {
		return false, ErrInvalidReveal
	}
	if s.Reveals == nil {
		s.Reveals = make(map[string]Reveal)
	}
	s.Reveals[identity] = Reveal{Move: move, Nonce: nonce}
	s.LastActionAt = now

	if !s.BothRevealed() {
		return false, nil
	}
	return s.resolveRound(rules, now)
}

func (s *Session) resolveRound(rules RuleSet, now time.Time) (bool, error) {
	r, ok := rules[s.Type]
	if !ok {
		return false, fmt.Errorf("no rules registered for %q", s.Type)
	}
	m1 := s.Reveals[s.Player1].Move
	m2 := s.Reveals[s.Player2].Move
	data, out, err := r.Resolve(s.GameData, s.Player1, s.Player2, m1, m2)
	if err != nil {
		return false, fmt.Errorf("resolve round %d: %w", s.Round, err)
	}
	s.GameData = data
	if out.Continue {
		s.Round++
		s.Commitments = make(map[string]commitment.Digest)
		s.Reveals = make(map[string]Reveal)
		return false, nil
	}
	s.Winner = out.Winner
	s.Draw = out.Draw
	s.State = StateFinished
	return true, nil
}

// Expirable is the pure deadline predicate shared by the Expire guard and
// external watchers: a Waiting session past joinTimeout, or an InProgress
// session with a missing reveal past moveTimeout.
func Expirable(state State, createdAt, lastActionAt time.Time, bothRevealed bool, now time.Time, joinTimeout, moveTimeout time.Duration) bool {
	switch state {
	case StateWaiting:
		return now.Sub(createdAt) > joinTimeout
	case StateInProgress:
		return !bothRevealed && now.Sub(lastActionAt) > moveTimeout
	default:
		return false
	}
}

// Expire forces a stalled session into the Expired terminal state. Any caller
// may request it; only the deadline guard decides.
func (s *Session) Expire(now time.Time, joinTimeout, moveTimeout time.Duration) error {
	if s.State.Terminal() {
		return ErrAlreadyTerminal
	}
	if !Expirable(s.State, s.CreatedAt, s.LastActionAt, s.BothRevealed(), now, joinTimeout, moveTimeout) {
		return ErrNotYetExpirable
	}
	s.State = StateExpired
	s.LastActionAt = now
	return nil
}
