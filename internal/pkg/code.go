package pkg

import (
	cryptoRand "crypto/rand"
	"math/big"
	"strings"
)

const tokenAlphabet = "abcdefghijkmnpqrstuvwxyzACDEFGHJKLMNPQRTUVWXY0123456789"

// RandToken 生成不透明的随机令牌（去掉了容易混淆的字符）
func RandToken(n int) (string, error) {
	return randFrom(tokenAlphabet, n)
}

func randFrom(alphabet string, n int) (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		x, err := cryptoRand.Int(cryptoRand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[x.Int64()])
	}
	return b.String(), nil
}
