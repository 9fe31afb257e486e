package gamedto

// CreateGameRequest opens a new session. The caller's identity comes from the
// X-Player-Id header, not the body.
type CreateGameRequest struct {
	GameType string `json:"game_type"`
	Stake    uint64 `json:"stake"`
}

type JoinGameRequest struct {
	Stake uint64 `json:"stake"`
}

// CommitRequest carries the hex sha256 digest of the caller's sealed move.
type CommitRequest struct {
	Digest string `json:"digest"`
}

// RevealRequest opens a previously committed move.
type RevealRequest struct {
	Move  uint64 `json:"move"`
	Nonce uint64 `json:"nonce"`
}
