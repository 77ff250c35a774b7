package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"rosca/core"
	"rosca/core/state"
	"rosca/crypto"
	"rosca/storage"
)

func testBech32(fill byte) string {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.RSCPrefix, raw).String()
}

func testRaw(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func newTestServer(t *testing.T) (*core.Node, *httptest.Server) {
	t.Helper()
	node := core.NewNode(state.NewManager(storage.NewMemDB()))
	node.SetNowFunc(func() int64 { return 1_000_000 })
	srv := httptest.NewServer(NewServer(node).Handler())
	t.Cleanup(srv.Close)
	return node, srv
}

func call(t *testing.T, url, token, method string, params ...interface{}) *RPCResponse {
	t.Helper()
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		require.NoError(t, err)
		rawParams = append(rawParams, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: rawParams, ID: 1})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error")
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, out))
}

func createParams(owner string) circleCreateParams {
	return circleCreateParams{
		Owner:             owner,
		Token:             "RSC",
		DepositAmount:     "1000",
		CycleIntervalSecs: 100,
		JoinDeadlineSecs:  3600,
	}
}

func TestCircleGetBeforeCreation(t *testing.T) {
	_, srv := newTestServer(t)

	resp := call(t, srv.URL, "", "circle_get")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeCircleNotFound, resp.Error.Code)
	require.Equal(t, "not_found", resp.Error.Message)
}

func TestCircleLifecycleOverRPC(t *testing.T) {
	node, srv := newTestServer(t)
	owner := testBech32(0x01)
	member := testBech32(0x0A)

	var created circleJSON
	decodeResult(t, call(t, srv.URL, "", "circle_create", createParams(owner)), &created)
	require.Equal(t, owner, created.Owner)
	require.Equal(t, uint64(1), created.CurrentCycle)
	require.True(t, created.OpenForJoining)
	require.Empty(t, created.Members)

	var joined bool
	decodeResult(t, call(t, srv.URL, "", "circle_join", circleCallerParams{Caller: member}), &joined)
	require.True(t, joined)

	require.NoError(t, node.Mint(testRaw(0x0A), big.NewInt(1000)))
	var deposited bool
	decodeResult(t, call(t, srv.URL, "", "circle_deposit", circleCallerParams{Caller: member}), &deposited)
	require.True(t, deposited)

	var memberView memberJSON
	decodeResult(t, call(t, srv.URL, "", "circle_getMember", circleMemberParams{Member: member}), &memberView)
	require.Equal(t, member, memberView.Address)
	require.Equal(t, uint32(11), memberView.ReputationScore)
	require.Equal(t, "0", memberView.PenaltiesAccrued)
	require.Equal(t, uint64(1), memberView.LastDepositCycle)

	var snapshot circleJSON
	decodeResult(t, call(t, srv.URL, "", "circle_get"), &snapshot)
	require.Equal(t, []string{member}, snapshot.Members)
	require.Equal(t, uint32(1), snapshot.DepositsBitmap)

	var vault balanceJSON
	vaultAddr := encodeAddress(node.VaultAddress())
	decodeResult(t, call(t, srv.URL, "", "token_balance", tokenBalanceParams{Address: vaultAddr}), &vault)
	require.Equal(t, "1000", vault.Balance)
}

func TestCircleCreateRejectsDuplicate(t *testing.T) {
	_, srv := newTestServer(t)
	owner := testBech32(0x01)

	var created circleJSON
	decodeResult(t, call(t, srv.URL, "", "circle_create", createParams(owner)), &created)

	resp := call(t, srv.URL, "", "circle_create", createParams(owner))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeCircleConflict, resp.Error.Code)
	require.Equal(t, "circle_exists", resp.Error.Message)
}

func TestInvalidAddressParam(t *testing.T) {
	_, srv := newTestServer(t)
	resp := call(t, srv.URL, "", "circle_join", circleCallerParams{Caller: "bogus"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeCircleInvalidParams, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	_, srv := newTestServer(t)
	resp := call(t, srv.URL, "", "circle_unknown")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRequiresPost(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBearerTokenGuardsMutations(t *testing.T) {
	t.Setenv(authTokenEnv, "sekrit")
	_, srv := newTestServer(t)
	owner := testBech32(0x01)

	// No token on a mutating method.
	resp := call(t, srv.URL, "", "circle_create", createParams(owner))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Wrong token.
	resp = call(t, srv.URL, "wrong", "circle_create", createParams(owner))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Correct token passes through to the handler.
	var created circleJSON
	decodeResult(t, call(t, srv.URL, "sekrit", "circle_create", createParams(owner)), &created)
	require.Equal(t, owner, created.Owner)

	// Queries stay open.
	var snapshot circleJSON
	decodeResult(t, call(t, srv.URL, "", "circle_get"), &snapshot)
	require.Equal(t, uint64(1), snapshot.CurrentCycle)
}
