package approval

import (
	"fmt"
	"time"
)

// VoucherFormatter renders PREFIX/YYYY/NNNNNN from the payment id.
type VoucherFormatter struct {
	Prefix string
}

func (f VoucherFormatter) Format(id int64, createdAt time.Time) string {
	prefix := f.Prefix
	if prefix == "" {
		prefix = "PAY"
	}
	return fmt.Sprintf("%s/%04d/%06d", prefix, createdAt.Year(), id)
}
