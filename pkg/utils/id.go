package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var idCounter uint32

// GenerateID 產生 24 字元的十六進位請求識別碼。
// 前 4 bytes 是 Unix 秒數，識別碼本身就帶著建立時間。
func GenerateID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&idCounter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// IDTime 從識別碼的時間戳前綴還原建立時間
func IDTime(id string) (time.Time, error) {
	if len(id) < 8 {
		return time.Time{}, fmt.Errorf("id too short: %d", len(id))
	}
	b, err := hex.DecodeString(id[:8])
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(binary.BigEndian.Uint32(b)), 0), nil
}

// IDOlderThan 判斷識別碼的建立時間是否已超過 d。
// 無法解析的字串一律視為不過期。
func IDOlderThan(id string, d time.Duration) bool {
	t, err := IDTime(id)
	if err != nil {
		return false
	}
	return time.Since(t) > d
}
