package paymaster

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
)

var testEntrypoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

func sampleOp() userop.UserOperation {
	return userop.UserOperation{
		Sender:               common.HexToAddress("0x7c3a76086588230c7B3f4839A4c1F5BBafcd57C6"),
		Nonce:                big.NewInt(1),
		CallData:             common.FromHex("0xb61d27f6"),
		CallGasLimit:         big.NewInt(54000),
		VerificationGasLimit: big.NewInt(100000),
		PreVerificationGas:   big.NewInt(48000),
		MaxFeePerGas:         big.NewInt(20_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
		PaymasterAndData:     userop.DummyPaymasterAndData(),
		Signature:            userop.DummySignature(),
	}
}

type sponsorRequest struct {
	Method string
	Params []json.RawMessage
}

// paymasterServer answers every request with reply, the id echoed back, and records the last request.
func paymasterServer(t *testing.T, reply string, status int) (*httptest.Server, *sponsorRequest) {
	var received sponsorRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		received.Method = req.Method
		received.Params = req.Params

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(reply))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,` + reply + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &received
}

func newPaymaster(t *testing.T, srv *httptest.Server) *RPCPaymaster {
	pm, err := NewRPCPaymaster(context.Background(), srv.URL, testEntrypoint, nil)
	require.NoError(t, err)
	t.Cleanup(pm.Close)
	return pm
}

func TestRPCPaymasterSponsorString(t *testing.T) {
	srv, received := paymasterServer(t, `"result":"0xc0ffee"`, http.StatusOK)
	pm := newPaymaster(t, srv)

	data, err := pm.Sponsor(context.Background(), sampleOp())
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0xc0ffee"), data)

	assert.Equal(t, "pm_sponsorUserOperation", received.Method)
	require.Len(t, received.Params, 2)

	var op userop.UserOperation
	require.NoError(t, json.Unmarshal(received.Params[0], &op))
	assert.Equal(t, sampleOp().Sender, op.Sender)
	assert.Equal(t, userop.DummyPaymasterAndData(), op.PaymasterAndData)

	var entrypoint string
	require.NoError(t, json.Unmarshal(received.Params[1], &entrypoint))
	assert.Equal(t, testEntrypoint.Hex(), entrypoint)
}

func TestRPCPaymasterSponsorObject(t *testing.T) {
	srv, _ := paymasterServer(t, `"result":{"paymasterAndData":"0xabcd"}`, http.StatusOK)

	data, err := newPaymaster(t, srv).Sponsor(context.Background(), sampleOp())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, data)
}

func TestRPCPaymasterDeclines(t *testing.T) {
	for name, reply := range map[string]string{
		"empty hex": `"result":"0x"`,
		"null":      `"result":null`,
		"empty obj": `"result":{"paymasterAndData":"0x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := paymasterServer(t, reply, http.StatusOK)

			data, err := newPaymaster(t, srv).Sponsor(context.Background(), sampleOp())
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestRPCPaymasterErrors(t *testing.T) {
	t.Run("json-rpc error", func(t *testing.T) {
		srv, _ := paymasterServer(t, `"error":{"code":-32602,"message":"policy rejected"}`, http.StatusOK)

		_, err := newPaymaster(t, srv).Sponsor(context.Background(), sampleOp())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "policy rejected")
	})

	t.Run("http error", func(t *testing.T) {
		srv, _ := paymasterServer(t, `bad gateway`, http.StatusBadGateway)

		_, err := newPaymaster(t, srv).Sponsor(context.Background(), sampleOp())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("invalid hex", func(t *testing.T) {
		srv, _ := paymasterServer(t, `"result":"zz"`, http.StatusOK)

		_, err := newPaymaster(t, srv).Sponsor(context.Background(), sampleOp())
		assert.Error(t, err)
	})
}
