package util

import "crypto/sha1"

// ScrambleNativePassword computes the mysql_native_password challenge
// response: SHA1(password) XOR SHA1(seed + SHA1(SHA1(password))).
// An empty password scrambles to an empty response.
func ScrambleNativePassword(password []byte, seed []byte) []byte {
	if len(password) == 0 {
		return nil
	}

	stage1 := sha1.Sum(password)
	stage2 := sha1.Sum(stage1[:])

	h := sha1.New()
	h.Write(seed)
	h.Write(stage2[:])
	stage3 := h.Sum(nil)

	result := make([]byte, len(stage1))
	for i := range stage1 {
		result[i] = stage1[i] ^ stage3[i]
	}
	return result
}
