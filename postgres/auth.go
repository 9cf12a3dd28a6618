package postgres

import (
	"crypto/md5"
	"encoding/hex"
)

// md5Password computes PostgreSQL's MD5 password challenge response:
// "md5" || hex(md5(hex(md5(password || user)) || salt))
// (the same formula other PostgreSQL drivers use).
func md5Password(user, password string, salt [4]byte) string {
	return "md5" + hexMD5(hexMD5(password+user)+string(salt[:]))
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
