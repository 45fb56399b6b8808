package orders

import (
	"fmt"
	"time"
)

// GenerateCode builds the human-readable order code: the UTC order date as
// YYYYMMDD followed by the zero-padded primary key.
func GenerateCode(id int64, orderedAt time.Time) string {
	return orderedAt.UTC().Format("20060102") + fmt.Sprintf("%010d", id)
}
