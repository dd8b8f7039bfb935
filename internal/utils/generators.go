package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const randomAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

// GenerateTicketBaseID builds the non-signature portion of a ticket id:
// PREFIX-TIMESTAMP-RANDOM. The random segment guards against two tickets
// issued in the same second colliding.
func GenerateTicketBaseID() string {
	timestamp := strings.ToUpper(strconv.FormatInt(time.Now().Unix(), 36))
	return fmt.Sprintf("TKT-%s-%s", timestamp, randomSegment(5))
}

func randomSegment(length int) string {
	out := make([]byte, length)
	max := big.NewInt(int64(len(randomAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = randomAlphabet[time.Now().UnixNano()%int64(len(randomAlphabet))]
			continue
		}
		out[i] = randomAlphabet[n.Int64()]
	}
	return string(out)
}
