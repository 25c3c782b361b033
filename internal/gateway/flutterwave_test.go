package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlutterwaveServer(t *testing.T, handler http.HandlerFunc) *Flutterwave {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFlutterwave(srv.URL, "FLWSECK_TEST-123", "hook-secret")
}

func TestFlutterwaveInitialize(t *testing.T) {
	var got map[string]interface{}
	fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer FLWSECK_TEST-123", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.flutterwave.com/v3/hosted/pay/abc"}}`))
	})

	res, err := fw.Initialize(context.Background(), InitializeRequest{
		Reference: "DGS-1-abc",
		Amount:    500050,
		Currency:  "NGN",
		Customer:  Customer{Email: "buyer@example.com", Name: "buyer"},
		Title:     "Go Patterns",
		Meta:      map[string]string{"transaction_id": "t-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/abc", res.HostedURL)
	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "DGS-1-abc", got["tx_ref"])
	assert.Equal(t, 5000.5, got["amount"])
	assert.Equal(t, "NGN", got["currency"])
	assert.Equal(t, "t-1", got["meta"].(map[string]interface{})["transaction_id"])
}

func TestFlutterwaveInitializeError(t *testing.T) {
	fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"Invalid currency","data":null}`))
	})

	_, err := fw.Initialize(context.Background(), InitializeRequest{Reference: "r", Amount: 100, Currency: "XXX"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid currency", apiErr.Message)
}

func TestFlutterwaveRequiresSecretKey(t *testing.T) {
	fw := NewFlutterwave("http://127.0.0.1:1", "", "")
	_, err := fw.Initialize(context.Background(), InitializeRequest{Reference: "r", Amount: 100})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFlutterwaveVerify(t *testing.T) {
	tests := []struct {
		name   string
		req    VerifyRequest
		path   string
		query  string
		status string
		want   string
	}{
		{"by id successful", VerifyRequest{GatewayTxID: "1163068"}, "/transactions/1163068/verify", "", "successful", StatusSuccessful},
		{"by reference failed", VerifyRequest{Reference: "DGS-2"}, "/transactions/verify_by_reference", "tx_ref=DGS-2", "failed", StatusFailed},
		{"still pending", VerifyRequest{GatewayTxID: "7"}, "/transactions/7/verify", "", "pending", StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, tt.path, r.URL.Path)
				assert.Equal(t, tt.query, r.URL.RawQuery)
				w.Write([]byte(`{"status":"success","message":"ok","data":{"id":1163068,"tx_ref":"DGS-2","status":"` + tt.status + `","amount":5000,"currency":"NGN","payment_type":"card"}}`))
			})

			res, err := fw.Verify(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, int64(500000), res.PaidAmount)
			assert.Equal(t, "NGN", res.Currency)
			assert.Equal(t, "1163068", res.GatewayTxID)
			assert.Equal(t, "card", res.Method)
		})
	}
}

func TestFlutterwaveVerifyUnknownReferenceIsPending(t *testing.T) {
	fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","message":"No transaction was found for this id","data":null}`))
	})

	res, err := fw.Verify(context.Background(), VerifyRequest{Reference: "DGS-missing"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
}

func TestFlutterwaveVerifyServerError(t *testing.T) {
	fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := fw.Verify(context.Background(), VerifyRequest{GatewayTxID: "1"})
	require.Error(t, err)
}

func TestFlutterwaveResolveAccount(t *testing.T) {
	fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/resolve", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["account_number"] != "0690000031" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"status":"error","message":"Sorry, recipient account could not be validated","data":null}`))
			return
		}
		w.Write([]byte(`{"status":"success","message":"Account details fetched","data":{"account_number":"0690000031","account_name":"Ada Seller"}}`))
	})

	info, err := fw.ResolveAccount(context.Background(), BankAccount{BankCode: "044", AccountNumber: "0690000031"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Seller", info.AccountName)

	_, err = fw.ResolveAccount(context.Background(), BankAccount{BankCode: "044", AccountNumber: "0000000000"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestFlutterwaveInitiateTransfer(t *testing.T) {
	var got map[string]interface{}
	fw := newFlutterwaveServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"status":"success","message":"Transfer Queued Successfully","data":{"id":26251,"status":"NEW","reference":"WD-1","fee":26.88,"complete_message":""}}`))
	})

	res, err := fw.InitiateTransfer(context.Background(), TransferRequest{
		Account:   BankAccount{BankCode: "044", AccountNumber: "0690000031"},
		Amount:    200000,
		Currency:  "NGN",
		Reference: "WD-1",
		Narration: "DigiStore payout",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, res.Status)
	assert.Equal(t, "26251", res.TransferID)
	assert.Equal(t, int64(2688), res.Fee)
	assert.Equal(t, 2000.0, got["amount"])
	assert.Equal(t, "044", got["account_bank"])
	assert.Equal(t, "WD-1", got["reference"])
}

func TestFlutterwaveWebhookSignature(t *testing.T) {
	fw := NewFlutterwave("", "key", "hook-secret")
	body := []byte(`{"event":"charge.completed","data":{"id":1,"tx_ref":"DGS-1","status":"successful"}}`)

	assert.True(t, fw.VerifyWebhookSignature(body, SignHMAC("hook-secret", body)))
	assert.False(t, fw.VerifyWebhookSignature(body, SignHMAC("other-secret", body)))
	assert.False(t, fw.VerifyWebhookSignature(append(body, ' '), SignHMAC("hook-secret", body)))
	assert.False(t, fw.VerifyWebhookSignature(body, ""))

	unconfigured := NewFlutterwave("", "key", "")
	assert.False(t, unconfigured.VerifyWebhookSignature(body, SignHMAC("", body)))
}

func TestFlutterwaveParseWebhook(t *testing.T) {
	fw := NewFlutterwave("", "key", "hook-secret")

	evt, err := fw.ParseWebhook([]byte(`{"event":"charge.completed","data":{"id":285959875,"tx_ref":"DGS-1","status":"successful"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventPayment, evt.Kind)
	assert.Equal(t, "DGS-1", evt.Reference)
	assert.Equal(t, "285959875", evt.GatewayID)
	assert.Equal(t, StatusSuccessful, evt.Status)

	evt, err = fw.ParseWebhook([]byte(`{"event":"transfer.completed","data":{"id":26251,"reference":"WD-1","status":"FAILED","complete_message":"Insufficient funds in customer wallet"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventTransfer, evt.Kind)
	assert.Equal(t, "WD-1", evt.Reference)
	assert.Equal(t, StatusFailed, evt.Status)
	assert.Equal(t, "Insufficient funds in customer wallet", evt.Reason)

	evt, err = fw.ParseWebhook([]byte(`{"event":"subscription.cancelled","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, EventOther, evt.Kind)

	_, err = fw.ParseWebhook([]byte(`{"event":"charge.completed","data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = fw.ParseWebhook([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestUnitConversion(t *testing.T) {
	assert.Equal(t, "5000.50", string(toMajor(500050)))
	assert.Equal(t, "0.01", string(toMajor(1)))
	assert.Equal(t, int64(500050), toMinor(5000.5))
	assert.Equal(t, int64(2688), toMinor(26.875))
}
