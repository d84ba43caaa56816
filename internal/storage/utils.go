package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StrToUint 将字符串转换为 uint。
// 如果转换失败，它会返回 0 和错误。
func StrToUint(s string) (uint, error) {
	val, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(val), nil
}

// FlexibleID decodes an id sent either as a JSON number or a numeric string.
type FlexibleID uint

// UnmarshalJSON accepts 42 and "42".
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	var n uint
	if err := json.Unmarshal(data, &n); err == nil {
		*id = FlexibleID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("id must be a number or numeric string")
	}
	v, err := StrToUint(s)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", s, err)
	}
	*id = FlexibleID(v)
	return nil
}
