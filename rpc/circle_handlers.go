package rpc

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"rosca/native/circle"
	"rosca/native/token"
)

const (
	codeCircleInvalidParams = -32021
	codeCircleNotFound      = -32022
	codeCircleForbidden     = -32023
	codeCircleConflict      = -32024
	codeCircleInternal      = -32025
)

type circleCreateParams struct {
	Owner             string   `json:"owner"`
	Token             string   `json:"token"`
	DepositAmount     string   `json:"depositAmount"`
	CycleIntervalSecs uint64   `json:"cycleIntervalSecs"`
	JoinDeadlineSecs  uint64   `json:"joinDeadlineSecs"`
	Roster            []string `json:"roster,omitempty"`
}

type circleCallerParams struct {
	Caller string `json:"caller"`
}

type circleMemberParams struct {
	Member string `json:"member"`
}

type tokenBalanceParams struct {
	Address string `json:"address"`
}

type preRegistrationJSON struct {
	Member string `json:"member"`
	SeenAt int64  `json:"seenAt"`
}

type circleJSON struct {
	Owner             string                `json:"owner"`
	Token             string                `json:"token"`
	DepositAmount     string                `json:"depositAmount"`
	CycleIntervalSecs uint64                `json:"cycleIntervalSecs"`
	JoinDeadlineSecs  uint64                `json:"joinDeadlineSecs"`
	Members           []string              `json:"members"`
	PreRegistered     []preRegistrationJSON `json:"preRegistered,omitempty"`
	CurrentCycle      uint64                `json:"currentCycle"`
	NextPayoutIndex   uint32                `json:"nextPayoutIndex"`
	DepositsBitmap    uint32                `json:"depositsBitmap"`
	Paused            bool                  `json:"paused"`
	OpenForJoining    bool                  `json:"openForJoining"`
}

type memberJSON struct {
	Address          string `json:"address"`
	ReputationScore  uint32 `json:"reputationScore"`
	PenaltiesAccrued string `json:"penaltiesAccrued"`
	LastDepositCycle uint64 `json:"lastDepositCycle"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func decodeSingleParam(req *RPCRequest, out interface{}) *handlerResult {
	if len(req.Params) != 1 {
		res := resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", "exactly one parameter object expected")
		return &res
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		res := resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", err.Error())
		return &res
	}
	return nil
}

func circleErrResult(err error) handlerResult {
	switch {
	case errors.Is(err, circle.ErrNotFound):
		return resultErr(http.StatusNotFound, codeCircleNotFound, "not_found", err.Error())
	case errors.Is(err, circle.ErrNotOwner):
		return resultErr(http.StatusForbidden, codeCircleForbidden, "not_owner", err.Error())
	case errors.Is(err, circle.ErrNotMember):
		return resultErr(http.StatusForbidden, codeCircleForbidden, "not_member", err.Error())
	case errors.Is(err, circle.ErrCircleExists):
		return resultErr(http.StatusConflict, codeCircleConflict, "circle_exists", err.Error())
	case errors.Is(err, circle.ErrAlreadyJoined):
		return resultErr(http.StatusConflict, codeCircleConflict, "already_joined", err.Error())
	case errors.Is(err, circle.ErrJoinDeadlinePassed):
		return resultErr(http.StatusConflict, codeCircleConflict, "join_deadline_passed", err.Error())
	case errors.Is(err, circle.ErrDepositAlreadyMade):
		return resultErr(http.StatusConflict, codeCircleConflict, "deposit_already_made", err.Error())
	case errors.Is(err, circle.ErrCycleNotReady):
		return resultErr(http.StatusConflict, codeCircleConflict, "cycle_not_ready", err.Error())
	case errors.Is(err, circle.ErrPaused):
		return resultErr(http.StatusConflict, codeCircleConflict, "paused", err.Error())
	case errors.Is(err, circle.ErrCircleFull):
		return resultErr(http.StatusConflict, codeCircleConflict, "circle_full", err.Error())
	case errors.Is(err, circle.ErrReservedAddress):
		return resultErr(http.StatusForbidden, codeCircleForbidden, "reserved_address", err.Error())
	case errors.Is(err, token.ErrInsufficientBalance):
		return resultErr(http.StatusConflict, codeCircleConflict, "insufficient_balance", err.Error())
	default:
		return resultErr(http.StatusInternalServerError, codeCircleInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleCircleCreate(req *RPCRequest) handlerResult {
	var params circleCreateParams
	if res := decodeSingleParam(req, &params); res != nil {
		return *res
	}
	owner, err := parseBech32Address(params.Owner)
	if err != nil {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", err.Error())
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(params.DepositAmount), 10)
	if !ok || amount.Sign() <= 0 {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", "depositAmount must be a positive integer")
	}
	roster := make([][20]byte, 0, len(params.Roster))
	for _, entry := range params.Roster {
		member, err := parseBech32Address(entry)
		if err != nil {
			return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", err.Error())
		}
		roster = append(roster, member)
	}
	cfg := circle.CircleConfig{
		Owner:             owner,
		Token:             strings.ToUpper(strings.TrimSpace(params.Token)),
		DepositAmount:     amount,
		CycleIntervalSecs: params.CycleIntervalSecs,
		JoinDeadlineSecs:  params.JoinDeadlineSecs,
	}
	state, err := s.node.CreateCircle(owner, cfg, roster)
	if err != nil {
		return circleErrResult(err)
	}
	return resultOK(circleToJSON(state))
}

func (s *Server) callerOp(req *RPCRequest, op func([20]byte) error) handlerResult {
	var params circleCallerParams
	if res := decodeSingleParam(req, &params); res != nil {
		return *res
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", err.Error())
	}
	if err := op(caller); err != nil {
		return circleErrResult(err)
	}
	return resultOK(true)
}

func (s *Server) handleCircleJoin(req *RPCRequest) handlerResult {
	return s.callerOp(req, s.node.JoinCircle)
}

func (s *Server) handleCircleDeposit(req *RPCRequest) handlerResult {
	return s.callerOp(req, s.node.Deposit)
}

func (s *Server) handleCircleClaim(req *RPCRequest) handlerResult {
	return s.callerOp(req, s.node.Claim)
}

func (s *Server) handleCirclePause(req *RPCRequest) handlerResult {
	return s.callerOp(req, s.node.Pause)
}

func (s *Server) handleCircleUnpause(req *RPCRequest) handlerResult {
	return s.callerOp(req, s.node.Unpause)
}

func (s *Server) handleCircleExecuteCycle(req *RPCRequest) handlerResult {
	if len(req.Params) != 0 {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", "no parameters expected")
	}
	if err := s.node.ExecuteCycle(); err != nil {
		return circleErrResult(err)
	}
	return resultOK(true)
}

func (s *Server) handleCircleGet(req *RPCRequest) handlerResult {
	if len(req.Params) != 0 {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", "no parameters expected")
	}
	state, err := s.node.GetCircle()
	if err != nil {
		return circleErrResult(err)
	}
	return resultOK(circleToJSON(state))
}

func (s *Server) handleCircleGetMember(req *RPCRequest) handlerResult {
	var params circleMemberParams
	if res := decodeSingleParam(req, &params); res != nil {
		return *res
	}
	member, err := parseBech32Address(params.Member)
	if err != nil {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", err.Error())
	}
	state, err := s.node.GetMemberState(member)
	if err != nil {
		return circleErrResult(err)
	}
	return resultOK(memberJSON{
		Address:          encodeAddress(member),
		ReputationScore:  state.ReputationScore,
		PenaltiesAccrued: state.PenaltiesAccrued.String(),
		LastDepositCycle: state.LastDepositCycle,
	})
}

func (s *Server) handleTokenBalance(req *RPCRequest) handlerResult {
	var params tokenBalanceParams
	if res := decodeSingleParam(req, &params); res != nil {
		return *res
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		return resultErr(http.StatusBadRequest, codeCircleInvalidParams, "invalid_params", err.Error())
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		return circleErrResult(err)
	}
	return resultOK(balanceJSON{Address: encodeAddress(addr), Balance: balance.String()})
}

func circleToJSON(state *circle.CircleState) circleJSON {
	out := circleJSON{
		Owner:             encodeAddress(state.Config.Owner),
		Token:             state.Config.Token,
		DepositAmount:     state.Config.DepositAmount.String(),
		CycleIntervalSecs: state.Config.CycleIntervalSecs,
		JoinDeadlineSecs:  state.Config.JoinDeadlineSecs,
		Members:           make([]string, 0, len(state.Members)),
		CurrentCycle:      state.CurrentCycle,
		NextPayoutIndex:   state.NextPayoutIndex,
		DepositsBitmap:    state.DepositsBitmap,
		Paused:            state.Paused,
		OpenForJoining:    state.OpenForJoining,
	}
	for _, member := range state.Members {
		out.Members = append(out.Members, encodeAddress(member))
	}
	for _, reg := range state.PreRegistered {
		out.PreRegistered = append(out.PreRegistered, preRegistrationJSON{
			Member: encodeAddress(reg.Member),
			SeenAt: reg.SeenAt,
		})
	}
	return out
}
