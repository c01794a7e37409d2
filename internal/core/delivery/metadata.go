package delivery

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MetadataLimit 对象存储自定义元数据总大小上限
const MetadataLimit = 2048

// Stringify 元数据统一转为字符串
func Stringify(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = stringValue(v)
	}
	return out
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case time.Duration:
		return strconv.FormatFloat(x.Seconds(), 'f', -1, 64)
	case []string:
		return strings.Join(x, ",")
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// MetadataSize 按键值字节数估算元数据大小
func MetadataSize(meta map[string]string) int {
	var n int
	for k, v := range meta {
		n += len(k) + len(v)
	}
	return n
}
