package exchange

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"hash"
	"net/url"
	"sort"
	"strings"
)

// HMACHex returns the hex encoded HMAC of message, upper-case when upper is set.
func HMACHex(h func() hash.Hash, secret []byte, message string, upper bool) string {
	out := hex.EncodeToString(computeHMAC(h, secret, []byte(message)))
	if upper {
		return strings.ToUpper(out)
	}
	return out
}

// HMACBase64 returns the standard base64 encoded HMAC of message.
func HMACBase64(h func() hash.Hash, secret []byte, message []byte) string {
	return base64.StdEncoding.EncodeToString(computeHMAC(h, secret, message))
}

func computeHMAC(h func() hash.Hash, secret, message []byte) []byte {
	mac := hmac.New(h, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// SHA256 returns the raw SHA-256 digest of message.
func SHA256(message string) []byte {
	sum := sha256.Sum256([]byte(message))
	return sum[:]
}

// MD5Upper returns the upper-case hex MD5 of message.
func MD5Upper(message string) string {
	sum := md5.Sum([]byte(message))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// SortedQuery renders params as k=v pairs in alphabetical key order, without
// escaping, the canonical form used by sorted-parameter signing schemes.
func SortedQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range params[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// EncodePayload JSON-encodes fields and returns both the JSON and its base64 form.
func EncodePayload(fields map[string]any) (raw []byte, encoded string, err error) {
	raw, err = json.Marshal(fields)
	if err != nil {
		return nil, "", err
	}
	return raw, base64.StdEncoding.EncodeToString(raw), nil
}
