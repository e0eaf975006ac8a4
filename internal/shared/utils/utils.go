package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// GenerateBusinessCode sinh business code dạng PREFIX_YYYYMMDD_XXXXXXXX
// (8 hex chars từ 4 random bytes). Collision về lý thuyết vẫn có thể xảy ra
// nên storage layer phải có unique constraint trên code.
func GenerateBusinessCode(prefix string) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand chỉ fail khi OS entropy source hỏng
		panic(fmt.Sprintf("rand.Read failed: %v", err))
	}
	suffix := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("%s_%s_%s", prefix, time.Now().Format("20060102"), suffix)
}
