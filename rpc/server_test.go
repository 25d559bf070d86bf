package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/raffled/raffled/core/ledger"
	"github.com/raffled/raffled/core/types"
	"github.com/raffled/raffled/raffle"
)

type fixedSource struct{ requests int }

func (s *fixedSource) RequestRandomWords(types.Hash, uint64, uint16, uint32, uint32) (types.Hash, error) {
	s.requests++
	return types.BytesToHash([]byte{byte(s.requests)}), nil
}

const testFee = 100

var (
	potAddr  = types.BytesToAddress([]byte("pot"))
	entrant  = types.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger = types.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newTestServer(t *testing.T) (*httptest.Server, *raffle.Raffle, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	l.Deposit(entrant, uint256.NewInt(testFee*10))

	r, err := raffle.New(raffle.Config{
		Account:              potAddr,
		EntranceFee:          uint256.NewInt(testFee),
		Interval:             30 * time.Second,
		SubID:                1,
		RequestConfirmations: 3,
		CallbackGasLimit:     500_000,
	}, raffle.Deps{Treasury: l, Randomness: &fixedSource{}})
	if err != nil {
		t.Fatalf("raffle.New: %v", err)
	}

	s := NewServer(Config{MaxBatchSize: 3}, nil)
	RegisterRaffleAPI(s, r)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv, r, l
}

func call(t *testing.T, srv *httptest.Server, body string) *Response {
	t.Helper()
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &out
}

func TestEnterAndReadBack(t *testing.T) {
	srv, r, _ := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"raffle_enter",
		"params":[{"from":"`+entrant.Hex()+`","value":"0x64"}]}`)
	if resp.Error != nil {
		t.Fatalf("raffle_enter error: %+v", resp.Error)
	}
	if r.NumPlayers() != 1 {
		t.Fatalf("NumPlayers = %d, want 1", r.NumPlayers())
	}

	resp = call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"raffle_numPlayers"}`)
	if resp.Result != "0x1" {
		t.Errorf("raffle_numPlayers = %v, want 0x1", resp.Result)
	}

	resp = call(t, srv, `{"jsonrpc":"2.0","id":3,"method":"raffle_player","params":["0x0"]}`)
	if resp.Result != entrant.Hex() {
		t.Errorf("raffle_player = %v, want %s", resp.Result, entrant.Hex())
	}

	resp = call(t, srv, `{"jsonrpc":"2.0","id":4,"method":"raffle_pot"}`)
	if resp.Result != "0x64" {
		t.Errorf("raffle_pot = %v, want 0x64", resp.Result)
	}
}

func TestEnterRejections(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// Underpayment surfaces as a server error.
	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"raffle_enter",
		"params":[{"from":"`+entrant.Hex()+`","value":"0x1"}]}`)
	if resp.Error == nil || resp.Error.Code != CodeServerError {
		t.Errorf("underpayment response = %+v", resp)
	}

	// Unfunded account.
	resp = call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"raffle_enter",
		"params":[{"from":"`+stranger.Hex()+`","value":"0x64"}]}`)
	if resp.Error == nil || resp.Error.Code != CodeServerError {
		t.Errorf("unfunded response = %+v", resp)
	}

	// Malformed address.
	resp = call(t, srv, `{"jsonrpc":"2.0","id":3,"method":"raffle_enter",
		"params":[{"from":"0x1234","value":"0x64"}]}`)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("bad address response = %+v", resp)
	}

	// Missing value.
	resp = call(t, srv, `{"jsonrpc":"2.0","id":4,"method":"raffle_enter",
		"params":[{"from":"`+entrant.Hex()+`"}]}`)
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("missing value response = %+v", resp)
	}
}

func TestReadAccessors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"raffle_entranceFee"}`)
	if resp.Result != "0x64" {
		t.Errorf("raffle_entranceFee = %v, want 0x64", resp.Result)
	}

	resp = call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"raffle_interval"}`)
	if resp.Result != "0x1e" {
		t.Errorf("raffle_interval = %v, want 0x1e", resp.Result)
	}

	resp = call(t, srv, `{"jsonrpc":"2.0","id":3,"method":"raffle_state"}`)
	if resp.Result != "open" {
		t.Errorf("raffle_state = %v, want open", resp.Result)
	}

	// No winner yet: null result.
	resp = call(t, srv, `{"jsonrpc":"2.0","id":4,"method":"raffle_recentWinner"}`)
	if resp.Error != nil || resp.Result != nil {
		t.Errorf("raffle_recentWinner = %+v", resp)
	}
}

func TestProtocolErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"raffle_unknown"}`)
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("unknown method = %+v", resp)
	}

	resp = call(t, srv, `{"jsonrpc":"1.0","id":1,"method":"raffle_state"}`)
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("wrong version = %+v", resp)
	}

	resp = call(t, srv, `{not json`)
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("bad json = %+v", resp)
	}

	// GET is not allowed.
	httpResp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", httpResp.StatusCode)
	}
}

func TestBatch(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := `[{"jsonrpc":"2.0","id":1,"method":"raffle_state"},
		{"jsonrpc":"2.0","id":2,"method":"raffle_numPlayers"}]`
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var out []Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("batch responses = %d, want 2", len(out))
	}
	if out[0].Result != "open" || out[1].Result != "0x0" {
		t.Errorf("batch results = %v, %v", out[0].Result, out[1].Result)
	}

	// Oversized batch rejected (MaxBatchSize is 3 in the test server).
	var big bytes.Buffer
	big.WriteString(`[`)
	for i := 0; i < 4; i++ {
		if i > 0 {
			big.WriteString(",")
		}
		big.WriteString(`{"jsonrpc":"2.0","id":1,"method":"raffle_state"}`)
	}
	big.WriteString(`]`)
	single := call(t, srv, big.String())
	if single.Error == nil || single.Error.Code != CodeInvalidRequest {
		t.Errorf("oversized batch = %+v", single)
	}
}
