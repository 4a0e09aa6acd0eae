package recycle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRabbitConsumerNoURL(t *testing.T) {
	_, err := NewRabbitConsumer("", "redeems", "confirms")
	require.Error(t, err)
}

func TestRedeemConfirmJSON(t *testing.T) {
	out, err := json.Marshal(RedeemConfirm{RedeemID: "q1", Code: "INSUFFICIENT_POINTS", Message: "Not enough points"})
	require.NoError(t, err)
	require.JSONEq(t, `{"redeemId": "q1", "success": false, "code": "INSUFFICIENT_POINTS", "message": "Not enough points"}`, string(out))
}
