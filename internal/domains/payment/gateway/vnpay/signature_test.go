package vnpay

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "TESTSECRET123"

func sampleParams() map[string]string {
	return map[string]string{
		"vnp_Version":   "2.1.0",
		"vnp_Command":   "pay",
		"vnp_TmnCode":   "DEMOV01",
		"vnp_Amount":    "5000000",
		"vnp_CurrCode":  "VND",
		"vnp_TxnRef":    "TOPUP_20260831_A1B2C3D4",
		"vnp_OrderInfo": "Nap tien vi",
		"vnp_ReturnUrl": "https://example.com/wallet/return",
		"vnp_IpAddr":    "203.0.113.10",
	}
}

func TestGenerateSignature_LowercaseHexSHA512(t *testing.T) {
	sig := GenerateSignature(sampleParams(), testSecret)

	// HMAC-SHA512 -> 64 bytes -> 128 lowercase hex chars
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{128}$`), sig)
}

func TestGenerateSignature_Deterministic(t *testing.T) {
	first := GenerateSignature(sampleParams(), testSecret)
	second := GenerateSignature(sampleParams(), testSecret)

	assert.Equal(t, first, second)
}

func TestGenerateSignature_IgnoresHashAndEmptyFields(t *testing.T) {
	base := GenerateSignature(sampleParams(), testSecret)

	withNoise := sampleParams()
	withNoise["vnp_SecureHash"] = "deadbeef"
	withNoise["vnp_SecureHashType"] = "HmacSHA512"
	withNoise["vnp_BankCode"] = ""

	assert.Equal(t, base, GenerateSignature(withNoise, testSecret))
}

func TestGenerateSignature_SecretMatters(t *testing.T) {
	sig1 := GenerateSignature(sampleParams(), testSecret)
	sig2 := GenerateSignature(sampleParams(), "othersecret")

	assert.NotEqual(t, sig1, sig2)
}

func TestVerifySignature_RoundTrip(t *testing.T) {
	params := sampleParams()
	sig := GenerateSignature(params, testSecret)

	assert.True(t, VerifySignature(params, sig, testSecret))

	// Uppercase hash from the gateway must still verify
	assert.True(t, VerifySignature(params, strings.ToUpper(sig), testSecret))
}

func TestVerifySignature_TamperedHashRejected(t *testing.T) {
	params := sampleParams()
	sig := GenerateSignature(params, testSecret)

	// Flip one character
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	assert.False(t, VerifySignature(params, string(flipped), testSecret))
	assert.False(t, VerifySignature(params, "", testSecret))
}

func TestVerifySignature_TamperedParamRejected(t *testing.T) {
	params := sampleParams()
	sig := GenerateSignature(params, testSecret)

	params["vnp_Amount"] = "9000000"

	assert.False(t, VerifySignature(params, sig, testSecret))
}

func TestBuildHashData_SortedAndEncoded(t *testing.T) {
	data := buildHashData(map[string]string{
		"vnp_TxnRef":    "REF1",
		"vnp_OrderInfo": "Nap tien vi dien tu",
		"vnp_Amount":    "100",
	})

	// Keys sorted ascending, spaces PHP-encoded as '+'
	assert.Equal(t, "vnp_Amount=100&vnp_OrderInfo=Nap+tien+vi+dien+tu&vnp_TxnRef=REF1", data)
}

func TestBuildHashData_ReturnURLStaysRaw(t *testing.T) {
	data := buildHashData(map[string]string{
		"vnp_ReturnUrl": "https://example.com/return?foo=bar",
		"vnp_TxnRef":    "REF1",
	})

	// Gateway quirk: the return URL is hashed unencoded, other values encoded
	assert.Contains(t, data, "vnp_ReturnUrl=https://example.com/return?foo=bar")
	assert.NotContains(t, data, "https%3A%2F%2F")
}

func TestBuildPaymentURL_QueryMatchesSignedSet(t *testing.T) {
	params := sampleParams()
	paymentURL := BuildPaymentURL("https://sandbox.vnpayment.vn/paymentv2/vpcpay.html", params, testSecret)

	require.Contains(t, paymentURL, "?")
	query := paymentURL[strings.Index(paymentURL, "?")+1:]

	// The final parameter is the signature over everything before it
	idx := strings.LastIndex(query, "&vnp_SecureHash=")
	require.Greater(t, idx, 0)

	signedPart := query[:idx]
	hash := query[idx+len("&vnp_SecureHash="):]

	assert.Equal(t, buildHashData(params), signedPart)
	assert.Equal(t, GenerateSignature(params, testSecret), hash)
}

func TestParseCallbackParams(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		wantErr  bool
	}{
		{
			name:     "valid callback",
			rawQuery: "vnp_TxnRef=TOPUP_20260831_A1B2C3D4&vnp_ResponseCode=00&vnp_SecureHash=abc123&vnp_Amount=5000000",
			wantErr:  false,
		},
		{
			name:     "missing txn ref",
			rawQuery: "vnp_ResponseCode=00&vnp_SecureHash=abc123",
			wantErr:  true,
		},
		{
			name:     "missing secure hash",
			rawQuery: "vnp_TxnRef=REF&vnp_ResponseCode=00",
			wantErr:  true,
		},
		{
			name:     "malformed query",
			rawQuery: "vnp_TxnRef=%zz",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := ParseCallbackParams(tt.rawQuery)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "TOPUP_20260831_A1B2C3D4", params["vnp_TxnRef"])
			// non-vnp params are dropped
			for k := range params {
				assert.True(t, strings.HasPrefix(k, "vnp_"))
			}
		})
	}
}
