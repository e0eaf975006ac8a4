package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// =====================================================
// VNPAY SIGNATURE
// =====================================================

// buildHashData builds the canonical string VNPay signs:
// 1. Drop vnp_SecureHash / vnp_SecureHashType and empty values
// 2. Sort remaining keys ascending (case-sensitive, raw key name)
// 3. Join key=value with "&", values URL-encoded PHP-style (space -> '+')
//    EXCEPT vnp_ReturnUrl which the gateway hashes unencoded.
//
// Duplicate keys after encoding are not de-duplicated; the sort+concat result
// is whatever it is, matching the counterparty.
func buildHashData(params map[string]string) string {
	filtered := make(map[string]string)
	for key, value := range params {
		if key != "vnp_SecureHash" && key != "vnp_SecureHashType" && value != "" {
			filtered[key] = value
		}
	}

	keys := make([]string, 0, len(filtered))
	for key := range filtered {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := filtered[key]
		if key != "vnp_ReturnUrl" {
			value = phpURLEncode(value)
		}
		parts = append(parts, key+"="+value)
	}

	return strings.Join(parts, "&")
}

// GenerateSignature computes HMAC-SHA512 over the canonical string.
// Output is lowercase hex.
func GenerateSignature(params map[string]string, secretKey string) string {
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write([]byte(buildHashData(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature over the received payload
// (hash fields excluded by buildHashData) and compares against the
// supplied hash. Comparison is case-insensitive for safety.
func VerifySignature(params map[string]string, providedHash, secretKey string) bool {
	if providedHash == "" {
		return false
	}
	expected := GenerateSignature(params, secretKey)
	return strings.EqualFold(providedHash, expected)
}

// BuildPaymentURL builds the signed VNPay redirect URL.
// The query string MUST be assembled from the same sorted parameter set as
// the hash data, or VNPay's own verification of the URL will fail. Like the
// hash data, vnp_ReturnUrl goes into the query unencoded (gateway quirk).
func BuildPaymentURL(baseURL string, params map[string]string, hashSecret string) string {
	queryString := buildHashData(params)
	secureHash := GenerateSignature(params, hashSecret)

	return fmt.Sprintf("%s?%s&vnp_SecureHash=%s", baseURL, queryString, secureHash)
}

// phpURLEncode encodes string like PHP's urlencode()
// PHP urlencode: spaces become '+', special chars become %XX
// Go url.QueryEscape: spaces become '%20'
func phpURLEncode(s string) string {
	encoded := url.QueryEscape(s)
	return strings.ReplaceAll(encoded, "%20", "+")
}

// ParseCallbackParams parses a raw callback query string into the vnp_*
// parameter map the signature functions expect.
func ParseCallbackParams(rawQuery string) (map[string]string, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid query string: %w", err)
	}

	params := make(map[string]string)
	for key, vals := range values {
		if strings.HasPrefix(key, "vnp_") && len(vals) > 0 {
			params[key] = vals[0]
		}
	}

	requiredFields := []string{
		"vnp_TxnRef",
		"vnp_ResponseCode",
		"vnp_SecureHash",
	}
	for _, field := range requiredFields {
		if params[field] == "" {
			return nil, fmt.Errorf("missing required field: %s", field)
		}
	}

	return params, nil
}
