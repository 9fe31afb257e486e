package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/duel-referee/internal/commitment"
	"github.com/park285/duel-referee/internal/engine"
	"github.com/park285/duel-referee/internal/obslog"
	"github.com/park285/duel-referee/internal/referee"
	"github.com/park285/duel-referee/internal/treasury"
	"github.com/park285/duel-referee/internal/view"
	"github.com/park285/duel-referee/pkg/gamedto"
)

const identityHeader = "X-Player-Id"

// Server exposes the referee over HTTP.
type Server struct {
	svc  *referee.Service
	http *fasthttp.Server
}

func NewServer(svc *referee.Service) *Server {
	s := &Server{svc: svc}
	s.http = &fasthttp.Server{
		Handler:            s.handle,
		Name:               "duel-referee",
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxRequestBodySize: 64 * 1024,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("gateway_listening", zap.String("addr", addr))
	return s.http.ListenAndServe(addr)
}

func (s *Server) Shutdown() error { return s.http.Shutdown() }

// Handler returns the raw request handler for serving on custom listeners.
func (s *Server) Handler() fasthttp.RequestHandler { return s.handle }

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	reqID := uuid.NewString()
	ctx.Response.Header.Set("X-Request-Id", reqID)
	ctx.SetContentType("application/json; charset=utf-8")

	path := string(ctx.Path())
	method := string(ctx.Method())

	switch {
	case path == "/v1/games" && method == fasthttp.MethodPost:
		s.createGame(ctx)
	case path == "/v1/games" && method == fasthttp.MethodGet:
		s.listGames(ctx)
	case strings.HasPrefix(path, "/v1/games/"):
		s.gameRoute(ctx, strings.TrimPrefix(path, "/v1/games/"), method)
	case path == "/healthz" && method == fasthttp.MethodGet:
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString(`{"status":"ok"}`)
	default:
		writeError(ctx, fasthttp.StatusNotFound, gamedto.CodeNotFound, "no such route")
	}
}

// gameRoute dispatches /v1/games/{id} and /v1/games/{id}/{action}.
func (s *Server) gameRoute(ctx *fasthttp.RequestCtx, rest, method string) {
	idStr, action, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, gamedto.CodeValidation, "game id must be a positive integer")
		return
	}

	switch {
	case action == "" && method == fasthttp.MethodGet:
		s.getGame(ctx, id)
	case action == "join" && method == fasthttp.MethodPost:
		s.joinGame(ctx, id)
	case action == "commit" && method == fasthttp.MethodPost:
		s.commitMove(ctx, id)
	case action == "reveal" && method == fasthttp.MethodPost:
		s.revealMove(ctx, id)
	case action == "expire" && method == fasthttp.MethodPost:
		s.expireGame(ctx, id)
	default:
		writeError(ctx, fasthttp.StatusNotFound, gamedto.CodeNotFound, "no such route")
	}
}

func (s *Server) createGame(ctx *fasthttp.RequestCtx) {
	identity, ok := requireIdentity(ctx)
	if !ok {
		return
	}
	var req gamedto.CreateGameRequest
	if !decodeBody(ctx, &req) {
		return
	}
	gt, ok := engine.ParseGameType(req.GameType)
	if !ok {
		writeError(ctx, fasthttp.StatusBadRequest, gamedto.CodeValidation, "unsupported game_type")
		return
	}
	stake := req.Stake
	if stake == 0 {
		stake = s.svc.Stake()
	}
	sess, err := s.svc.CreateGame(requestContext(ctx), gt, identity, stake)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, view.Project(sess))
}

func (s *Server) joinGame(ctx *fasthttp.RequestCtx, id uint64) {
	identity, ok := requireIdentity(ctx)
	if !ok {
		return
	}
	var req gamedto.JoinGameRequest
	if !decodeBody(ctx, &req) {
		return
	}
	stake := req.Stake
	if stake == 0 {
		stake = s.svc.Stake()
	}
	sess, err := s.svc.JoinGame(requestContext(ctx), id, identity, stake)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, view.Project(sess))
}

func (s *Server) commitMove(ctx *fasthttp.RequestCtx, id uint64) {
	identity, ok := requireIdentity(ctx)
	if !ok {
		return
	}
	var req gamedto.CommitRequest
	if !decodeBody(ctx, &req) {
		return
	}
	sess, err := s.svc.CommitMove(requestContext(ctx), id, identity, req.Digest)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, view.Project(sess))
}

func (s *Server) revealMove(ctx *fasthttp.RequestCtx, id uint64) {
	identity, ok := requireIdentity(ctx)
	if !ok {
		return
	}
	var req gamedto.RevealRequest
	if !decodeBody(ctx, &req) {
		return
	}
	sess, err := s.svc.RevealMove(requestContext(ctx), id, identity, req.Move, req.Nonce)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, view.Project(sess))
}

// expireGame requires no identity: liveness must not depend on the stalling
// party cooperating.
func (s *Server) expireGame(ctx *fasthttp.RequestCtx, id uint64) {
	sess, err := s.svc.ExpireGame(requestContext(ctx), id)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, view.Project(sess))
}

func (s *Server) getGame(ctx *fasthttp.RequestCtx, id uint64) {
	sess, err := s.svc.GetGame(requestContext(ctx), id)
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, view.Project(sess))
}

func (s *Server) listGames(ctx *fasthttp.RequestCtx) {
	ids, err := s.svc.ListActive(requestContext(ctx))
	if err != nil {
		writeDomainError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gamedto.GameListResponse{Games: ids})
}

func requireIdentity(ctx *fasthttp.RequestCtx) (string, bool) {
	id := strings.TrimSpace(string(ctx.Request.Header.Peek(identityHeader)))
	if id == "" {
		writeError(ctx, fasthttp.StatusUnauthorized, gamedto.CodeIdentity, "X-Player-Id header is required")
		return "", false
	}
	return id, true
}

func decodeBody(ctx *fasthttp.RequestCtx, out any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, gamedto.CodeValidation, "invalid JSON body")
		return false
	}
	return true
}

// requestContext: RequestCtx implements context.Context, hand it down as-is.
func requestContext(ctx *fasthttp.RequestCtx) context.Context {
	return ctx
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, gamedto.CodeInternal, "encode response")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, msg string) {
	ctx.SetStatusCode(status)
	raw, _ := json.Marshal(gamedto.ErrorResponse{Code: code, Message: msg})
	ctx.SetBody(raw)
}

// writeDomainError maps engine and treasury failures onto HTTP statuses with
// stable codes.
func writeDomainError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(ctx, fasthttp.StatusNotFound, gamedto.CodeNotFound, err.Error())
	case errors.Is(err, commitment.ErrMalformedDigest),
		errors.Is(err, engine.ErrInvalidStake):
		writeError(ctx, fasthttp.StatusBadRequest, gamedto.CodeValidation, err.Error())
	case errors.Is(err, engine.ErrNotParticipant):
		writeError(ctx, fasthttp.StatusForbidden, gamedto.CodeIdentity, err.Error())
	case errors.Is(err, treasury.ErrInsufficientFunds):
		writeError(ctx, fasthttp.StatusPaymentRequired, gamedto.CodeFunds, err.Error())
	case errors.Is(err, engine.ErrNotYetExpirable):
		writeError(ctx, fasthttp.StatusConflict, gamedto.CodeNotExpired, err.Error())
	case errors.Is(err, engine.ErrAlreadyJoined),
		errors.Is(err, engine.ErrSelfJoin),
		errors.Is(err, engine.ErrNotJoinable),
		errors.Is(err, engine.ErrNotInProgress),
		errors.Is(err, engine.ErrAlreadyTerminal),
		errors.Is(err, engine.ErrDuplicateCommitment),
		errors.Is(err, engine.ErrNoCommitment),
		errors.Is(err, engine.ErrDuplicateReveal),
		errors.Is(err, engine.ErrInvalidReveal):
		writeError(ctx, fasthttp.StatusConflict, gamedto.CodeConflict, err.Error())
	default:
		obslog.L().Error("gateway_internal_error", zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, gamedto.CodeInternal, "internal error")
	}
}
